package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/valkey-io/valkey-go"
)

var ErrNoCacheClient = errors.New("cache client not configured")

// CacheBuilder assembles a single valkey command against one key.
type CacheBuilder struct {
	client CacheClient
	key    string
	value  any
	ttl    time.Duration
	ctx    context.Context
}

func NewCacheBuilder(client CacheClient, key string) *CacheBuilder {
	return &CacheBuilder{
		client: client,
		key:    key,
		ctx:    context.Background(),
	}
}

func (b *CacheBuilder) WithStruct(value any) *CacheBuilder {
	b.value = value
	return b
}

func (b *CacheBuilder) WithTTL(ttl time.Duration) *CacheBuilder {
	b.ttl = ttl
	return b
}

func (b *CacheBuilder) WithContext(ctx context.Context) *CacheBuilder {
	b.ctx = ctx
	return b
}

func (b *CacheBuilder) Set() error {
	if b.client == nil {
		return ErrNoCacheClient
	}

	payload, err := json.Marshal(b.value)
	if err != nil {
		return err
	}

	cmd := b.client.B().Set().Key(b.key).Value(valkey.BinaryString(payload))
	if b.ttl > 0 {
		return b.client.Do(b.ctx, cmd.PxMilliseconds(b.ttl.Milliseconds()).Build()).Error()
	}
	return b.client.Do(b.ctx, cmd.Build()).Error()
}

// Get decodes the stored value into dst. A missing key is not an error.
func (b *CacheBuilder) Get(dst any) (bool, error) {
	if b.client == nil {
		return false, ErrNoCacheClient
	}

	payload, err := b.client.Do(b.ctx, b.client.B().Get().Key(b.key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(payload, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (b *CacheBuilder) Delete() error {
	if b.client == nil {
		return ErrNoCacheClient
	}
	return b.client.Do(b.ctx, b.client.B().Del().Key(b.key).Build()).Error()
}

// DeletePattern removes every key matching the glob, walking with SCAN.
func (b *CacheBuilder) DeletePattern() (int, error) {
	if b.client == nil {
		return 0, ErrNoCacheClient
	}

	deleted := 0
	cursor := uint64(0)
	for {
		entry, err := b.client.Do(b.ctx, b.client.B().Scan().Cursor(cursor).Match(b.key).Count(100).Build()).AsScanEntry()
		if err != nil {
			return deleted, err
		}
		if len(entry.Elements) > 0 {
			if err := b.client.Do(b.ctx, b.client.B().Del().Key(entry.Elements...).Build()).Error(); err != nil {
				return deleted, err
			}
			deleted += len(entry.Elements)
		}
		if entry.Cursor == 0 {
			return deleted, nil
		}
		cursor = entry.Cursor
	}
}
