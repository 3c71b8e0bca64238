package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore keeps pairs in a JetStream key/value bucket.
// Bucket keys are restricted to [-/_=.a-zA-Z0-9], so store keys are
// base64url-encoded on the way in and decoded on the way out.
type NATSStore struct {
	conn    *nats.Conn
	kv      jetstream.KeyValue
	timeout time.Duration
}

// NewNATSStore connects to url and opens (or creates) bucket.
func NewNATSStore(ctx context.Context, url, bucket string) (*NATSStore, error) {
	nc, err := nats.Connect(url, nats.Name("activitygate"))
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "activitygate forwarding rules",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("kv bucket %s: %w", bucket, err)
	}

	return &NATSStore{conn: nc, kv: kv, timeout: 5 * time.Second}, nil
}

func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeKey(encoded string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// applyTimeout applies the configured timeout to the context
func (n *NATSStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, n.timeout)
}

// List walks every key in the bucket.
func (n *NATSStore) List(ctx context.Context) (map[string]string, error) {
	ctx, cancel := n.applyTimeout(ctx)
	defer cancel()

	result := make(map[string]string)
	lister, err := n.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return result, nil
		}
		return nil, fmt.Errorf("kv list: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	for encoded := range lister.Keys() {
		key, err := decodeKey(encoded)
		if err != nil {
			// Not written by this store; leave it alone.
			continue
		}
		entry, err := n.kv.Get(ctx, encoded)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("kv get %s: %w", key, err)
		}
		result[key] = string(entry.Value())
	}
	return result, nil
}

// Get retrieves a single value by key.
func (n *NATSStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := n.applyTimeout(ctx)
	defer cancel()

	entry, err := n.kv.Get(ctx, encodeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("kv get %s: %w", key, err)
	}
	return string(entry.Value()), nil
}

// Put creates or updates a key (last writer wins).
func (n *NATSStore) Put(ctx context.Context, key, value string) error {
	ctx, cancel := n.applyTimeout(ctx)
	defer cancel()

	if _, err := n.kv.Put(ctx, encodeKey(key), []byte(value)); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// Delete removes a key from the bucket.
func (n *NATSStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := n.applyTimeout(ctx)
	defer cancel()

	err := n.kv.Delete(ctx, encodeKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// Close drains the NATS connection.
func (n *NATSStore) Close() error {
	return n.conn.Drain()
}
