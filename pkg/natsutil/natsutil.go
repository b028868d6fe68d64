// Package natsutil publishes and consumes JSON events over NATS with
// OpenTelemetry trace context carried in message headers.
package natsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// headerCarrier adapts nats.Msg headers to propagation.TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Encode builds the message for v with the trace context of ctx injected.
func Encode(ctx context.Context, subject string, v any) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("natsutil: encode %s: %w", subject, err)
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	return msg, nil
}

// Decode unmarshals msg into a T and returns the context extracted from its headers.
func Decode[T any](msg *nats.Msg) (context.Context, T, error) {
	var v T
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return nil, v, fmt.Errorf("natsutil: decode %s: %w", msg.Subject, err)
	}
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
	return ctx, v, nil
}

// Publish serializes v as JSON and publishes it on subject.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T) error {
	msg, err := Encode(ctx, subject, v)
	if err != nil {
		return err
	}
	return nc.PublishMsg(msg)
}

// Subscribe registers handler for JSON messages of type T. Malformed
// messages are logged and dropped.
func Subscribe[T any](nc *nats.Conn, subject string, logger *slog.Logger, handler func(context.Context, T)) (*nats.Subscription, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		ctx, v, err := Decode[T](msg)
		if err != nil {
			logger.Warn("dropping malformed event", "subject", msg.Subject, "err", err)
			return
		}
		handler(ctx, v)
	})
}
