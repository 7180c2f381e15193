package command

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/otus-tap/agent/internal/metrics"
)

func startTestServer(t *testing.T, handler *CommandHandler) (*UDSServer, string) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "test.sock")
	server := NewUDSServer(socketPath, handler)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop in time")
		}
	})

	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	return server, socketPath
}

func TestUDSServerClient_Integration(t *testing.T) {
	registry := metrics.NewRegistry()
	handler := NewCommandHandler(registry, "test-version", nil, nil)
	_, socketPath := startTestServer(t, handler)

	client := NewUDSClient(socketPath, 5*time.Second)

	t.Run("status", func(t *testing.T) {
		resp, err := client.Status(context.Background())
		require.NoError(t, err)
		require.Nil(t, resp.Error)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, client.Ping(context.Background()))
	})

	t.Run("unknown method", func(t *testing.T) {
		resp, err := client.Call(context.Background(), "unknown.method", nil)
		require.NoError(t, err)
		require.NotNil(t, resp.Error)
		require.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
	})
}

func TestUDSClient_ConnectionError(t *testing.T) {
	client := NewUDSClient("/tmp/non-existent-otus-tap-socket.sock", time.Second)
	_, err := client.Status(context.Background())
	require.Error(t, err)
}

func TestUDSServer_MultipleConnections(t *testing.T) {
	registry := metrics.NewRegistry()
	handler := NewCommandHandler(registry, "test-version", nil, nil)
	_, socketPath := startTestServer(t, handler)

	errCh := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			client := NewUDSClient(socketPath, 5*time.Second)
			_, err := client.Status(context.Background())
			errCh <- err
		}()
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, <-errCh)
	}
}

func TestUDSClient_ReloadAndStopNotWired(t *testing.T) {
	registry := metrics.NewRegistry()
	handler := NewCommandHandler(registry, "test-version", nil, nil)
	_, socketPath := startTestServer(t, handler)

	client := NewUDSClient(socketPath, 5*time.Second)

	resp, err := client.Reload(context.Background())
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	require.Equal(t, ErrCodeInternal, resp.Error.Code)

	resp, err = client.Stop(context.Background())
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	require.Equal(t, ErrCodeInternal, resp.Error.Code)
}

func TestNewUDSClient_DefaultTimeout(t *testing.T) {
	client := NewUDSClient("/tmp/test.sock", 0)
	require.Equal(t, 10*time.Second, client.timeout)

	client2 := NewUDSClient("/tmp/test.sock", 5*time.Second)
	require.Equal(t, 5*time.Second, client2.timeout)
}
