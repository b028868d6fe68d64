package natsutil

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
)

// Event subjects.
const (
	SubjectIndexRebuilt    = "carfinder.index.rebuilt"
	SubjectIngestCompleted = "carfinder.ingest.completed"
	SubjectSourcesStatus   = "carfinder.sources.status"
)

// Publisher emits events. Publishing is best effort.
type Publisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

// ConnPublisher publishes on a NATS connection.
type ConnPublisher struct {
	nc *nats.Conn
}

// NewConnPublisher wraps nc.
func NewConnPublisher(nc *nats.Conn) *ConnPublisher {
	return &ConnPublisher{nc: nc}
}

func (p *ConnPublisher) Publish(ctx context.Context, subject string, v any) error {
	return Publish(ctx, p.nc, subject, v)
}

// Nop discards every event. It is used when no NATS URL is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

// Connect dials url and returns a publisher for it. An empty url, or a
// failed dial, yields Nop and a nil connection.
func Connect(url, name string, logger *slog.Logger) (Publisher, *nats.Conn) {
	if logger == nil {
		logger = slog.Default()
	}
	if url == "" {
		return Nop{}, nil
	}
	nc, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
	if err != nil {
		logger.Warn("nats unavailable, events disabled", "url", url, "err", err)
		return Nop{}, nil
	}
	return NewConnPublisher(nc), nc
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Recorded
}

// Recorded is one captured event.
type Recorded struct {
	Subject string
	Value   any
}

func (r *Recorder) Publish(_ context.Context, subject string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Recorded{Subject: subject, Value: v})
	return nil
}

// Subjects returns the subjects published so far, in order.
func (r *Recorder) Subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Subject
	}
	return out
}
