package cache

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/nats-io/nats.go/jetstream"
)

// kvStore is the part of jetstream.KeyValue the cache needs.
type kvStore interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
}

// envelope carries the per-entry deadline. Bucket-level TTL is only an upper
// bound, so per-key expiry is enforced on read.
type envelope struct {
	Expires int64  `cbor:"exp"`
	Value   []byte `cbor:"val"`
}

// NATS is a Cache shared between server instances through a JetStream
// key-value bucket.
type NATS struct {
	kv  kvStore
	now Clock
}

// NewNATS creates or updates bucket. maxTTL must be at least the longest TTL
// callers use, since JetStream drops anything older.
func NewNATS(ctx context.Context, js jetstream.JetStream, bucket string, maxTTL time.Duration) (*NATS, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		TTL:     maxTTL,
		History: 1,
		Storage: jetstream.MemoryStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("kv bucket %q: %w", bucket, err)
	}
	return &NATS{kv: kv, now: time.Now}, nil
}

// natsKey maps arbitrary keys (base64 token hashes contain '+') onto the
// NATS key alphabet.
func natsKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (n *NATS) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	data, err := cbor.Marshal(envelope{Expires: n.now().Add(ttl).UnixNano(), Value: value})
	if err != nil {
		return err
	}
	if _, err := n.kv.Put(ctx, natsKey(key), data); err != nil {
		return fmt.Errorf("kv put: %w", err)
	}
	return nil
}

func (n *NATS) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := n.kv.Get(ctx, natsKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kv get: %w", err)
	}

	var env envelope
	if err := cbor.Unmarshal(entry.Value(), &env); err != nil {
		return nil, false, fmt.Errorf("kv decode: %w", err)
	}
	if n.now().UnixNano() >= env.Expires {
		_ = n.kv.Delete(ctx, natsKey(key))
		return nil, false, nil
	}
	return env.Value, true, nil
}

func (n *NATS) Remove(ctx context.Context, key string) error {
	if err := n.kv.Delete(ctx, natsKey(key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete: %w", err)
	}
	return nil
}
