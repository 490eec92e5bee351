// Package kv is the client's durable key/value storage. Values are opaque
// JSON documents; every write replaces the whole value under its key.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kv: key not found")

// Store is a durable key/value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// GetJSON reads key and decodes it into T.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, error) {
	var v T
	raw, err := s.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return v, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON[T any](ctx context.Context, s Store, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// Options selects and configures a Store implementation.
type Options struct {
	// Driver is one of memory, file, sqlite, sqlite3 or nats.
	Driver string
	// Path is the directory for file and the database file for sqlite drivers.
	Path string
	// Conn and Bucket configure the nats driver.
	Conn   *nats.Conn
	Bucket string
}

// Drivers lists the accepted Options.Driver values.
var Drivers = []string{"memory", "file", "sqlite", "sqlite3", "nats"}

// Open builds the Store selected by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Driver) {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return NewFile(opts.Path)
	case "sqlite", "sqlite3":
		return OpenSQL(ctx, strings.ToLower(opts.Driver), opts.Path)
	case "nats":
		if opts.Conn == nil {
			return nil, errors.New("kv: nats driver requires a connection")
		}
		return NewNATS(ctx, opts.Conn, opts.Bucket)
	default:
		return nil, fmt.Errorf("kv: unknown driver %q", opts.Driver)
	}
}

// Close releases resources held by s, if any.
func Close(s Store) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
