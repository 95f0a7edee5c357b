package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/aminnairi/cristaline/ports/kv"
)

const defaultBucket = "cristaline"

type KvConfig struct {
	Connect  Connector    // Connect is used to create the underlying NATS connection. If nil, ConnectDefault() is used.
	Log      *slog.Logger // Log for diagnostics (optional)
	Bucket   string       // Bucket name. Defaults to "cristaline".
	MaxBytes int64        // MaxBytes caps the bucket size. Zero means unlimited.
	Storage  jetstream.StorageType
}

// KvStore is a kv.Store backed by a JetStream key-value bucket.
type KvStore struct {
	kv      jetstream.KeyValue
	log     *slog.Logger
	closeNc closeFunc
}

func NewKvStore(ctx context.Context, cfg KvConfig) (*KvStore, error) {
	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}

	nc, closeNc, err := doConnect()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	maxBytes := cfg.MaxBytes
	if maxBytes == 0 {
		maxBytes = -1
	}

	bkt, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   bucket,
		Storage:  cfg.Storage,
		MaxBytes: maxBytes,
		History:  1,
	})
	if err != nil {
		closeNc()
		return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
	}

	return &KvStore{
		kv:      bkt,
		log:     log.With(slog.String("store", "nats_kv"), slog.String("bucket", bucket)),
		closeNc: closeNc,
	}, nil
}

func (k *KvStore) Get(ctx context.Context, key string) (kv.Entry, error) {
	v, err := k.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return kv.Entry{}, kv.ErrNotFound
		}
		return kv.Entry{}, fmt.Errorf("get %s: %w", key, err)
	}
	return kv.Entry{Value: v.Value(), Revision: v.Revision()}, nil
}

func (k *KvStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := k.kv.Put(ctx, key, value)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	k.log.Debug("put", slog.String("key", key), slog.Uint64("revision", rev))
	return rev, nil
}

func (k *KvStore) Update(ctx context.Context, key string, value []byte, revision uint64) (rev uint64, err error) {
	if revision == 0 {
		rev, err = k.kv.Create(ctx, key, value)
	} else {
		rev, err = k.kv.Update(ctx, key, value, revision)
	}
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) || wrongSequence(err) {
			return 0, kv.ErrRevisionMismatch
		}
		return 0, fmt.Errorf("update %s: %w", key, err)
	}
	k.log.Debug("update", slog.String("key", key), slog.Uint64("revision", rev))
	return rev, nil
}

func (k *KvStore) Delete(ctx context.Context, key string) error {
	if err := k.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close releases the NATS connection lease.
func (k *KvStore) Close() { k.closeNc() }

var _ kv.Store = (*KvStore)(nil)

func wrongSequence(err error) bool {
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
