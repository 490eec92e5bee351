package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/buymove/buymove-client/pkg/natsutil"
)

// DefaultBucket is the JetStream key/value bucket used when none is given.
const DefaultBucket = "buymove"

// NATS stores values in a JetStream key/value bucket.
type NATS struct {
	kv jetstream.KeyValue
}

// NewNATS binds to (creating if needed) the bucket on nc's JetStream.
func NewNATS(ctx context.Context, nc *nats.Conn, bucket string) (*NATS, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	kv, err := natsutil.KeyValue(ctx, nc, bucket)
	if err != nil {
		return nil, fmt.Errorf("kv: %w", err)
	}
	return &NATS{kv: kv}, nil
}

func (n *NATS) Get(ctx context.Context, key string) ([]byte, error) {
	e, err := n.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: get %s: %w", key, err)
	}
	return e.Value(), nil
}

func (n *NATS) Set(ctx context.Context, key string, value []byte) error {
	if _, err := n.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("kv: set %s: %w", key, err)
	}
	return nil
}

func (n *NATS) Delete(ctx context.Context, key string) error {
	err := n.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv: delete %s: %w", key, err)
	}
	return nil
}
