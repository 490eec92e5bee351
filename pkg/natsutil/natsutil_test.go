package natsutil

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/buymove/buymove-client/pkg/natsutil/natstest"
)

type payload struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestNatsHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)

	if got := carrier.Get("missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if keys := carrier.Keys(); keys != nil {
		t.Fatalf("expected nil keys, got %v", keys)
	}

	carrier.Set("traceparent", "00-abc-def-01")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("expected traceparent, got %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestPublishSubscribe(t *testing.T) {
	_, nc := natstest.Start(t)

	ch := make(chan payload, 1)
	sub, err := Subscribe(nc, "test.pub", func(_ context.Context, p payload) { ch <- p })
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	if err := nc.Publish("test.pub", []byte("{broken")); err != nil {
		t.Fatal(err)
	}
	if err := Publish(context.Background(), nc, "test.pub", payload{Name: "hello", Value: 1}); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-ch:
		if p.Name != "hello" || p.Value != 1 {
			t.Fatalf("unexpected payload: %+v", p)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestKeyValueCreatesBucket(t *testing.T) {
	_, nc := natstest.Start(t)
	ctx := context.Background()

	kv, err := KeyValue(ctx, nc, "test_bucket")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := kv.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}

	again, err := KeyValue(ctx, nc, "test_bucket")
	if err != nil {
		t.Fatal(err)
	}
	e, err := again.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(e.Value()) != "v" {
		t.Fatalf("got %q", e.Value())
	}
}

func TestConnect(t *testing.T) {
	srv, _ := natstest.Start(t)
	nc, err := Connect(srv.ClientURL(), "test", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()
	if !nc.IsConnected() {
		t.Fatal("expected connection")
	}

	if _, err := Connect("nats://127.0.0.1:1", "test", nil); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}
