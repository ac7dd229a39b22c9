package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsConnected())
	assert.Equal(t, int32(0), client.Reconnects())
}

func TestNewClient_Options(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithMaxReconnects(3),
		WithReconnectWait(time.Second),
		WithCredentials("esp32", "secret"),
		WithClientName("biostream-backend"),
	)
	require.NoError(t, err)

	assert.Equal(t, 3, client.maxReconnects)
	assert.Equal(t, time.Second, client.reconnectWait)
	assert.Equal(t, "esp32", client.username)
	assert.Equal(t, "biostream-backend", client.clientName)
}

func TestNewClient_InvalidOption(t *testing.T) {
	_, err := NewClient("nats://localhost:4222", WithReconnectWait(-time.Second))
	assert.Error(t, err)
}

func TestConnectionStatus_String(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusClosed, "closed"},
		{ConnectionStatus(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestPublish_FailsFastWhenDisconnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	err = client.Publish(context.Background(), "potentiostat.command", []byte("START"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnect_CancelledContextStoresNoConnection(t *testing.T) {
	// TEST-NET address: the handshake cannot complete before the cancelled
	// context wins the race.
	client, err := NewClient("nats://192.0.2.1:4222", WithConnectTimeout(100*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = client.Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusDisconnected, client.Status())

	// The connection is only stored on the success path, so a lost race
	// never leaves a live conn behind the disconnected status.
	client.mu.RLock()
	defer client.mu.RUnlock()
	assert.Nil(t, client.conn)
	assert.Nil(t, client.js)
}

func TestHandleDisconnect_TransitionsToReconnecting(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	client.setStatus(StatusConnected)

	client.handleDisconnect(nil, assert.AnError)

	assert.Equal(t, StatusReconnecting, client.Status())
	assert.Equal(t, int32(1), client.Reconnects())
	assert.False(t, client.lastFailure.Load().(time.Time).IsZero())
}

func TestHandleReconnect_ResetsAttempts(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	client.setStatus(StatusConnected)

	for i := 0; i < 4; i++ {
		client.handleDisconnect(nil, assert.AnError)
	}
	assert.Equal(t, int32(4), client.Reconnects())

	client.handleReconnect(nil)
	assert.Equal(t, StatusConnected, client.Status())
	assert.Equal(t, int32(0), client.Reconnects())
}

func TestHandleClosed_ReconnectExhaustionIsTerminal(t *testing.T) {
	lost := make(chan error, 1)
	client, err := NewClient("nats://localhost:4222",
		WithMaxReconnects(10),
		WithConnectionLostCallback(func(err error) { lost <- err }),
	)
	require.NoError(t, err)
	client.setStatus(StatusConnected)

	// Simulate the capped reconnect attempts failing one after another.
	for i := 0; i < 10; i++ {
		client.handleDisconnect(nil, assert.AnError)
	}
	assert.Equal(t, StatusReconnecting, client.Status())

	// nats.go closes the connection once the cap is exhausted.
	client.handleClosed(nil)

	assert.Equal(t, StatusDisconnected, client.Status())
	select {
	case <-lost:
	case <-time.After(time.Second):
		t.Fatal("connection-lost callback not invoked")
	}

	// No recovery is attempted: status remains disconnected.
	assert.Equal(t, StatusDisconnected, client.Status())
}

func TestClose_Idempotent(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, client.Close(ctx))
	assert.Equal(t, StatusClosed, client.Status())

	// Second close is a no-op
	require.NoError(t, client.Close(ctx))

	// Credentials cleared on close
	assert.Empty(t, client.username)
	assert.Empty(t, client.password)
}

func TestConnect_AfterCloseRejected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, client.Close(ctx))

	assert.ErrorIs(t, client.Connect(ctx), ErrClosed)
}
