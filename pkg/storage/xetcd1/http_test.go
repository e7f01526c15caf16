package xetcd1

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    string
		wantErr error
	}{
		{"普通键", "foo", "foo", nil},
		{"去掉前导斜杠", "/foo", "foo", nil},
		{"多级路径", "/foo/bar", "foo/bar", nil},
		{"空键", "", "", ErrEmptyKey},
		{"仅斜杠", "/", "", ErrEmptyKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateKey(tt.key)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeysPath(t *testing.T) {
	assert.Equal(t, "/v1/keys/foo", keysPath("foo"))
	assert.Equal(t, "/v1/keys/foo/bar", keysPath("foo/bar"))
	// 段内特殊字符转义，斜杠保留为路径分隔符
	assert.Equal(t, "/v1/keys/foo%20bar", keysPath("foo bar"))
	assert.Equal(t, "/v1/keys/%E9%85%8D%E7%BD%AE/app", keysPath("配置/app"))
}

func TestWatchPath(t *testing.T) {
	assert.Equal(t, "/v1/watch/foo/bar", watchPath("foo/bar"))
}

func TestPathClass(t *testing.T) {
	assert.Equal(t, "/v1/keys", pathClass("/v1/keys/foo/bar"))
	assert.Equal(t, "/v1/watch", pathClass("/v1/watch/foo"))
	assert.Equal(t, "/v1/machines", pathClass("/v1/machines"))
	assert.Equal(t, "/v1/leader", pathClass("/v1/leader"))
}

func TestReadBody(t *testing.T) {
	t.Run("正常读取", func(t *testing.T) {
		data, err := readBody(strings.NewReader(`{"action":"GET"}`))
		require.NoError(t, err)
		assert.Equal(t, `{"action":"GET"}`, string(data))
	})

	t.Run("刚好达到上限", func(t *testing.T) {
		data, err := readBody(bytes.NewReader(bytes.Repeat([]byte("a"), maxResponseSize)))
		require.NoError(t, err)
		assert.Len(t, data, maxResponseSize)
	})

	t.Run("超出上限", func(t *testing.T) {
		_, err := readBody(bytes.NewReader(bytes.Repeat([]byte("a"), maxResponseSize+1)))
		assert.ErrorIs(t, err, ErrResponseTooLarge)
	})

	t.Run("读取错误", func(t *testing.T) {
		readErr := errors.New("broken pipe")
		_, err := readBody(iotest.ErrReader(readErr))
		require.Error(t, err)
		assert.ErrorIs(t, err, readErr)
		assert.Contains(t, err.Error(), "read response body")
	})
}
