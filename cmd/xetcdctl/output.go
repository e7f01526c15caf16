package main

import (
	"encoding/json"
	"io"
	"time"
)

// printer 统一命令输出：默认人类可读文本，--json 时输出缩进 JSON。
type printer struct {
	w        io.Writer
	jsonMode bool
}

func newPrinter(w io.Writer, jsonMode bool) *printer {
	return &printer{w: w, jsonMode: jsonMode}
}

// print 输出单个结果。jsonValue 用于 JSON 模式，text 负责文本模式。
func (p *printer) print(jsonValue any, text func(io.Writer)) error {
	if p.jsonMode {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonValue)
	}
	text(p.w)
	return nil
}

// JSON 模式的输出结构，字段名与 v1 API 响应保持同样的小驼峰风格。

type kvOutput struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Index uint64 `json:"index"`
}

type setOutput struct {
	Key        string     `json:"key"`
	Value      string     `json:"value"`
	Index      uint64     `json:"index"`
	NewKey     bool       `json:"newKey"`
	PrevValue  string     `json:"prevValue,omitempty"`
	Expiration *time.Time `json:"expiration,omitempty"`
}

type deleteOutput struct {
	Key       string `json:"key"`
	Index     uint64 `json:"index"`
	PrevValue string `json:"prevValue"`
}

type listOutput struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
	Dir   bool   `json:"dir,omitempty"`
	Index uint64 `json:"index"`
}

type watchOutput struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Value  string `json:"value,omitempty"`
	Index  uint64 `json:"index"`
	NewKey bool   `json:"newKey,omitempty"`
}

type tasOutput struct {
	Key        string     `json:"key"`
	Value      string     `json:"value"`
	PrevValue  string     `json:"prevValue"`
	Index      uint64     `json:"index"`
	Expiration *time.Time `json:"expiration,omitempty"`
}

type leaderOutput struct {
	Leader string `json:"leader"`
}

type healthOutput struct {
	Healthy  bool   `json:"healthy"`
	Endpoint string `json:"endpoint"`
	Detail   string `json:"detail,omitempty"`
}

type lockOutput struct {
	Key   string `json:"key"`
	Token string `json:"token,omitempty"`
	TTL   string `json:"ttl"`
}
