package natsutil

import (
	"context"
	"slices"
	"testing"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type rebuilt struct {
	Model string `json:"model"`
	Size  int    `json:"size"`
}

func TestHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	c := (*headerCarrier)(msg)
	if c.Get("traceparent") != "" || c.Keys() != nil {
		t.Fatal("empty carrier reported values")
	}
	c.Set("traceparent", "00-abc-def-01")
	if got := c.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("got %q", got)
	}
	if keys := c.Keys(); len(keys) != 1 {
		t.Fatalf("keys = %v", keys)
	}
}

func TestEncodeDecodeCarriesTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	msg, err := Encode(context.Background(), SubjectIndexRebuilt, rebuilt{Model: "hash-384", Size: 12})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Subject != SubjectIndexRebuilt {
		t.Errorf("subject = %q", msg.Subject)
	}
	_, got, err := Decode[rebuilt](msg)
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != "hash-384" || got.Size != 12 {
		t.Errorf("decoded %+v", got)
	}

	if _, _, err := Decode[rebuilt](&nats.Msg{Subject: "x", Data: []byte("{bad")}); err == nil {
		t.Error("malformed payload decoded")
	}
}

func TestConnectWithoutURL(t *testing.T) {
	pub, nc := Connect("", "test", nil)
	if nc != nil {
		t.Fatal("connection opened without url")
	}
	if _, ok := pub.(Nop); !ok {
		t.Fatalf("publisher = %T", pub)
	}
	if err := pub.Publish(context.Background(), SubjectSourcesStatus, nil); err != nil {
		t.Fatal(err)
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	ctx := context.Background()
	_ = r.Publish(ctx, SubjectIngestCompleted, 1)
	_ = r.Publish(ctx, SubjectIndexRebuilt, 2)
	if got := r.Subjects(); !slices.Equal(got, []string{SubjectIngestCompleted, SubjectIndexRebuilt}) {
		t.Errorf("subjects = %v", got)
	}
}
