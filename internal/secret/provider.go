// Package secret loads the token signing secret once per process and keeps it for reuse.
package secret

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrSecretNotFound is returned when the backing store has no value for the key.
var ErrSecretNotFound = errors.New("secret not found")

// Source fetches the raw secret from wherever it lives.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Provider caches the first successful fetch. A failed fetch is not cached, so the next
// call tries the source again.
type Provider struct {
	source Source
	logger *logrus.Logger

	mu     sync.Mutex
	cached []byte
}

func NewProvider(source Source, logger *logrus.Logger) *Provider {
	return &Provider{
		source: source,
		logger: logger,
	}
}

func (p *Provider) Secret(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil {
		return p.cached, nil
	}

	value, err := p.source.Fetch(ctx)
	if err != nil {
		p.logger.WithError(err).Error("Failed to fetch signing secret")
		return nil, fmt.Errorf("failed to fetch signing secret: %w", err)
	}
	if len(value) == 0 {
		return nil, ErrSecretNotFound
	}

	p.cached = value
	p.logger.Info("Signing secret loaded")
	return p.cached, nil
}

// Reset drops the cached secret so the next call fetches it again.
func (p *Provider) Reset() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

// StaticSource serves a secret taken from configuration.
type StaticSource []byte

func (s StaticSource) Fetch(context.Context) ([]byte, error) {
	if len(s) == 0 {
		return nil, ErrSecretNotFound
	}
	return []byte(s), nil
}

// RedisSource reads the secret from a Redis string key.
type RedisSource struct {
	client redis.Cmdable
	key    string
}

func NewRedisSource(client redis.Cmdable, key string) *RedisSource {
	return &RedisSource{
		client: client,
		key:    key,
	}
}

func (s *RedisSource) Fetch(ctx context.Context) ([]byte, error) {
	value, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: redis key %q", ErrSecretNotFound, s.key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from redis: %w", err)
	}
	return value, nil
}
