package logstream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"
)

// NewValkeyClient connects to Valkey and verifies the connection.
func NewValkeyClient(addr string) (valkey.Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Valkey: %w", err)
	}
	return client, nil
}

// ValkeyLogWriter publishes log lines to a Valkey pub/sub channel.
type ValkeyLogWriter struct {
	client  valkey.Client
	channel string
	ctx     context.Context
}

// NewValkeyLogWriter creates a publisher for channel "<prefix>:<topic>".
func NewValkeyLogWriter(client valkey.Client, prefix, topic string) *ValkeyLogWriter {
	return &ValkeyLogWriter{
		client:  client,
		channel: fmt.Sprintf("%s:%s", prefix, topic),
		ctx:     context.Background(),
	}
}

// Channel returns the pub/sub channel name.
func (w *ValkeyLogWriter) Channel() string {
	return w.channel
}

// Write implements io.Writer. Publish failures are logged and swallowed so
// the producing process is never blocked on Valkey.
func (w *ValkeyLogWriter) Write(p []byte) (n int, err error) {
	if err := w.Publish(string(p)); err != nil {
		slog.Warn("Failed to publish log to Valkey", "channel", w.channel, "error", err)
	}
	return len(p), nil
}

// Publish sends one message to the channel.
func (w *ValkeyLogWriter) Publish(message string) error {
	cmd := w.client.B().Publish().Channel(w.channel).Message(message).Build()
	return w.client.Do(w.ctx, cmd).Error()
}
