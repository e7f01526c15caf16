package xetcd1

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 4001, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.False(t, cfg.FollowLeader)
	assert.False(t, cfg.SyncOnStart)
	assert.Zero(t, cfg.AutoSyncInterval)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "默认配置有效",
			mutate: func(*Config) {},
		},
		{
			name:    "端口为负",
			mutate:  func(c *Config) { c.Port = -1 },
			wantErr: "port -1 out of range",
		},
		{
			name:    "端口超出范围",
			mutate:  func(c *Config) { c.Port = 65536 },
			wantErr: "out of range",
		},
		{
			name:    "超时为负",
			mutate:  func(c *Config) { c.Timeout = -time.Second },
			wantErr: "negative timeout",
		},
		{
			name:    "自动同步间隔为负",
			mutate:  func(c *Config) { c.AutoSyncInterval = -time.Minute },
			wantErr: "negative auto sync interval",
		},
		{
			name:    "只设置私钥不设置证书",
			mutate:  func(c *Config) { c.KeyFile = "/tmp/key.pem" },
			wantErr: "key file set without cert file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	t.Run("零值填充默认", func(t *testing.T) {
		orig := &Config{}
		cfg := orig.applyDefaults()

		assert.Equal(t, "127.0.0.1", cfg.Host)
		assert.Equal(t, 4001, cfg.Port)
		assert.Equal(t, 30*time.Second, cfg.Timeout)

		// 原配置不被修改
		assert.Empty(t, orig.Host)
		assert.Zero(t, orig.Port)
	})

	t.Run("已设置的值保留", func(t *testing.T) {
		orig := &Config{Host: "etcd.internal", Port: 4002, Timeout: time.Second}
		cfg := orig.applyDefaults()

		assert.Equal(t, "etcd.internal", cfg.Host)
		assert.Equal(t, 4002, cfg.Port)
		assert.Equal(t, time.Second, cfg.Timeout)
	})
}

func TestConfig_BaseURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "默认 http",
			cfg:  Config{Host: "127.0.0.1", Port: 4001},
			want: "http://127.0.0.1:4001",
		},
		{
			name: "配置客户端证书后为 https",
			cfg:  Config{Host: "etcd.internal", Port: 4001, CertFile: "/certs/client.pem"},
			want: "https://etcd.internal:4001",
		},
		{
			name: "仅配置 CA 也为 https",
			cfg:  Config{Host: "etcd.internal", Port: 4001, CAFile: "/certs/ca.pem"},
			want: "https://etcd.internal:4001",
		},
		{
			name: "IPv6 主机加方括号",
			cfg:  Config{Host: "::1", Port: 4001},
			want: "http://[::1]:4001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.baseURL())
		})
	}
}

func TestConfig_TLSConfig(t *testing.T) {
	t.Run("无证书材料返回 nil", func(t *testing.T) {
		cfg := DefaultConfig()
		tlsCfg, err := cfg.tlsConfig()
		require.NoError(t, err)
		assert.Nil(t, tlsCfg)
	})

	t.Run("仅跳过验证", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.InsecureSkipVerify = true

		tlsCfg, err := cfg.tlsConfig()
		require.NoError(t, err)
		require.NotNil(t, tlsCfg)
		assert.True(t, tlsCfg.InsecureSkipVerify)
		assert.Empty(t, tlsCfg.Certificates)
	})

	t.Run("证书与私钥分离", func(t *testing.T) {
		certFile, keyFile := writeTestCert(t, false)
		cfg := DefaultConfig()
		cfg.CertFile = certFile
		cfg.KeyFile = keyFile

		tlsCfg, err := cfg.tlsConfig()
		require.NoError(t, err)
		require.NotNil(t, tlsCfg)
		assert.Len(t, tlsCfg.Certificates, 1)
	})

	t.Run("合并 PEM 只设置 CertFile", func(t *testing.T) {
		combined, _ := writeTestCert(t, true)
		cfg := DefaultConfig()
		cfg.CertFile = combined

		tlsCfg, err := cfg.tlsConfig()
		require.NoError(t, err)
		require.NotNil(t, tlsCfg)
		assert.Len(t, tlsCfg.Certificates, 1)
	})

	t.Run("CA 文件构建根证书池", func(t *testing.T) {
		certFile, _ := writeTestCert(t, false)
		cfg := DefaultConfig()
		cfg.CAFile = certFile

		tlsCfg, err := cfg.tlsConfig()
		require.NoError(t, err)
		require.NotNil(t, tlsCfg)
		assert.NotNil(t, tlsCfg.RootCAs)
	})

	t.Run("证书文件不存在", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.CertFile = filepath.Join(t.TempDir(), "missing.pem")

		_, err := cfg.tlsConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load client certificate")
	})

	t.Run("CA 文件不存在", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.CAFile = filepath.Join(t.TempDir(), "missing-ca.pem")

		_, err := cfg.tlsConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read ca file")
	})

	t.Run("CA 文件不含有效证书", func(t *testing.T) {
		caFile := filepath.Join(t.TempDir(), "garbage.pem")
		require.NoError(t, os.WriteFile(caFile, []byte("not a pem"), 0o600))

		cfg := DefaultConfig()
		cfg.CAFile = caFile

		_, err := cfg.tlsConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no valid certificate")
	})
}

func TestConfig_JSONTags(t *testing.T) {
	raw := `{
		"host": "etcd.internal",
		"port": 4002,
		"certFile": "/certs/client.pem",
		"insecureSkipVerify": true,
		"followLeader": true,
		"autoSyncInterval": 60000000000
	}`

	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))

	assert.Equal(t, "etcd.internal", cfg.Host)
	assert.Equal(t, 4002, cfg.Port)
	assert.Equal(t, "/certs/client.pem", cfg.CertFile)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.True(t, cfg.FollowLeader)
	assert.Equal(t, time.Minute, cfg.AutoSyncInterval)
}

// writeTestCert 生成自签名证书，返回证书与私钥的 PEM 文件路径。
// combined 为 true 时证书与私钥写入同一个文件，第二个返回值为空。
func writeTestCert(t *testing.T, combined bool) (string, string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "xetcd1-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyDER, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	dir := t.TempDir()
	if combined {
		path := filepath.Join(dir, "combined.pem")
		require.NoError(t, os.WriteFile(path, append(certPEM, keyPEM...), 0o600))
		return path, ""
	}

	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))
	return certFile, keyFile
}
