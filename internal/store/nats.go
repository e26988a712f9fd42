package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATS stores slots in a JetStream key-value bucket.
type NATS struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// OpenNATS connects to url and creates the bucket if it does not exist.
func OpenNATS(ctx context.Context, url, bucket string) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("quill"))
	if err != nil {
		return nil, fmt.Errorf("open nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open nats: jetstream: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "quill key-value slots",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open nats: bucket %s: %w", bucket, err)
	}

	return &NATS{nc: nc, kv: kv}, nil
}

func (n *NATS) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := n.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("nats get %q: %w", key, err)
	}
	return entry.Value(), true, nil
}

func (n *NATS) Set(ctx context.Context, key string, value []byte) error {
	if _, err := n.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("nats set %q: %w", key, err)
	}
	return nil
}

func (n *NATS) Delete(ctx context.Context, key string) error {
	err := n.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("nats delete %q: %w", key, err)
	}
	return nil
}

func (n *NATS) Close() error {
	n.nc.Close()
	return nil
}
