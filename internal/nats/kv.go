package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/conversation-engine/internal/kv"
)

// DefaultBucket is the key-value bucket holding conversation records.
const DefaultBucket = "conversations"

// KeyValueStore is a kv.KV backed by a JetStream key-value bucket.
type KeyValueStore struct {
	bucket jetstream.KeyValue
}

var _ kv.KV = (*KeyValueStore)(nil)

// NewKeyValueStore opens the bucket, creating it when missing.
func NewKeyValueStore(ctx context.Context, client *Client, bucket string) (*KeyValueStore, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	js := client.JetStream()

	b, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		b, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "Conversation records",
			History:     1,
			Storage:     jetstream.FileStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open key-value bucket %s: %w", bucket, err)
	}
	return &KeyValueStore{bucket: b}, nil
}

func (s *KeyValueStore) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.bucket.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry.Value(), nil
}

func (s *KeyValueStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.bucket.Put(ctx, key, value)
	return err
}

// Delete removes key. JetStream accepts deletes of absent keys, so presence is
// checked first.
func (s *KeyValueStore) Delete(ctx context.Context, key string) error {
	if _, err := s.Get(ctx, key); err != nil {
		return err
	}
	return s.bucket.Delete(ctx, key)
}

func (s *KeyValueStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.bucket.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return keys, nil
}
