//go:build integration

package xetcd1

import (
	"context"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// 集成测试需要带 v1 API 的真实 etcd 服务。
// 运行方式: go test -tags=integration -v ./pkg/storage/xetcd1/...
//
// 环境变量:
//   - XETCD1_ENDPOINT: 已有服务的 host:port，设置后不启动容器
//   - XETCD1_ETCD_IMAGE: 容器镜像，默认 quay.io/coreos/etcd:v0.4.9

const defaultEtcdImage = "quay.io/coreos/etcd:v0.4.9"

func setupEtcd(t *testing.T) (host string, port int) {
	t.Helper()

	if endpoint := os.Getenv("XETCD1_ENDPOINT"); endpoint != "" {
		h, p, err := net.SplitHostPort(endpoint)
		require.NoError(t, err, "XETCD1_ENDPOINT 必须是 host:port 形式")
		var portNum int
		_, err = fmt.Sscanf(p, "%d", &portNum)
		require.NoError(t, err)
		return h, portNum
	}

	image := os.Getenv("XETCD1_ETCD_IMAGE")
	if image == "" {
		image = defaultEtcdImage
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        image,
		ExposedPorts: []string{"4001/tcp"},
		Cmd:          []string{"-addr", "0.0.0.0:4001", "-name", "xetcd1-it"},
		WaitingFor:   wait.ForListeningPort("4001/tcp"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("etcd container not available: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	h, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "4001/tcp")
	require.NoError(t, err)
	return h, mapped.Int()
}

func integrationClient(t *testing.T) *Client {
	t.Helper()

	host, port := setupEtcd(t)
	client, err := NewClient(&Config{
		Host:    host,
		Port:    port,
		Timeout: 10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})

	// 等待服务就绪
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for {
		if err := client.Health(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			t.Skipf("etcd not ready: %v", ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
	return client
}

func TestIntegration_SetGetDelete(t *testing.T) {
	client := integrationClient(t)
	ctx := context.Background()

	key := "xetcd1-test/set-get-" + time.Now().Format("20060102150405")

	setRes, err := client.Set(ctx, key, "hello", 0)
	require.NoError(t, err)
	assert.True(t, setRes.NewKey)

	getRes, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "hello", getRes.Value)

	delRes, err := client.Delete(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "hello", delRes.PrevValue)

	_, err = client.Get(ctx, key)
	assert.True(t, IsKeyNotFound(err), "Get after Delete error = %v", err)
}

func TestIntegration_TTLExpiry(t *testing.T) {
	client := integrationClient(t)
	ctx := context.Background()

	key := "xetcd1-test/ttl-" + time.Now().Format("20060102150405")

	res, err := client.Set(ctx, key, "ephemeral", 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, res.Expiration)

	got, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "ephemeral", got.Value)

	// 真实时钟下等待过期
	time.Sleep(3 * time.Second)

	_, err = client.Get(ctx, key)
	assert.True(t, IsKeyNotFound(err), "Get after TTL expiry error = %v", err)
}

func TestIntegration_TestAndSet(t *testing.T) {
	client := integrationClient(t)
	ctx := context.Background()

	key := "xetcd1-test/tas-" + time.Now().Format("20060102150405")

	_, err := client.Set(ctx, key, "one", 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = client.Delete(context.Background(), key)
	})

	res, err := client.TestAndSet(ctx, key, "one", "two", 0)
	require.NoError(t, err)
	assert.Equal(t, "one", res.PrevValue)

	_, err = client.TestAndSet(ctx, key, "one", "three", 0)
	assert.True(t, IsTestFailed(err), "TestAndSet with stale prevValue error = %v", err)

	got, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "two", got.Value)
}

func TestIntegration_ListAndRecursive(t *testing.T) {
	client := integrationClient(t)
	ctx := context.Background()

	prefix := "xetcd1-test/list-" + time.Now().Format("20060102150405")

	_, err := client.Set(ctx, prefix+"/a", "1", 0)
	require.NoError(t, err)
	_, err = client.Set(ctx, prefix+"/sub/b", "2", 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = client.Delete(context.Background(), prefix+"/a")
		_, _ = client.Delete(context.Background(), prefix+"/sub/b")
	})

	entries, err := client.List(ctx, prefix)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	kvs, err := client.GetRecursive(ctx, prefix)
	require.NoError(t, err)
	values := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		values[kv.Key] = kv.Value
	}
	assert.Equal(t, "1", values[prefix+"/a"])
	assert.Equal(t, "2", values[prefix+"/sub/b"])
}

func TestIntegration_Watch(t *testing.T) {
	client := integrationClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := "xetcd1-test/watch-" + time.Now().Format("20060102150405")

	go func() {
		time.Sleep(200 * time.Millisecond)
		_, _ = client.Set(context.Background(), key, "observed", 0)
	}()

	res, err := client.Watch(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, key, res.Key)
	assert.Equal(t, "observed", res.Value)

	t.Cleanup(func() {
		_, _ = client.Delete(context.Background(), key)
	})
}

func TestIntegration_Machines(t *testing.T) {
	client := integrationClient(t)

	machines, err := client.Machines(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, machines)
}
