package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisMedium stores every collection as a single string key.
type RedisMedium struct {
	client *redis.Client
	prefix string
}

// NewRedisMedium wraps an existing client. Keys are <prefix><name>.
func NewRedisMedium(client *redis.Client, prefix string) *RedisMedium {
	return &RedisMedium{client: client, prefix: prefix}
}

func (m *RedisMedium) key(name string) string {
	return m.prefix + name
}

// Load returns the stored document for name.
func (m *RedisMedium) Load(ctx context.Context, name string) ([]byte, error) {
	data, err := m.client.Get(ctx, m.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("collection %s: %w", name, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("load collection %s: %w", name, err)
	}
	return data, nil
}

// Save replaces the document for name.
func (m *RedisMedium) Save(ctx context.Context, name string, data []byte) error {
	if err := m.client.Set(ctx, m.key(name), data, 0).Err(); err != nil {
		return fmt.Errorf("save collection %s: %w", name, err)
	}
	return nil
}

// Identity returns the server address, database and key.
func (m *RedisMedium) Identity(name string) string {
	opts := m.client.Options()
	return "redis:" + opts.Addr + "/" + strconv.Itoa(opts.DB) + "/" + m.key(name)
}

// Close closes the client.
func (m *RedisMedium) Close() error {
	return m.client.Close()
}
