package secret

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type flakySource struct {
	calls int
	fail  int
	value []byte
}

func (s *flakySource) Fetch(context.Context) ([]byte, error) {
	s.calls++
	if s.calls <= s.fail {
		return nil, errors.New("connection refused")
	}
	return s.value, nil
}

func TestProvider_CachesFirstSuccess(t *testing.T) {
	src := &flakySource{value: []byte("secret")}
	p := NewProvider(src, testLogger())

	for i := 0; i < 3; i++ {
		got, err := p.Secret(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []byte("secret"), got)
	}
	assert.Equal(t, 1, src.calls)
}

func TestProvider_RetriesAfterFailure(t *testing.T) {
	src := &flakySource{fail: 1, value: []byte("secret")}
	p := NewProvider(src, testLogger())

	_, err := p.Secret(context.Background())
	require.Error(t, err)

	got, err := p.Secret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), got)
	assert.Equal(t, 2, src.calls)
}

func TestProvider_Reset(t *testing.T) {
	src := &flakySource{value: []byte("secret")}
	p := NewProvider(src, testLogger())

	_, err := p.Secret(context.Background())
	require.NoError(t, err)
	p.Reset()
	_, err = p.Secret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestStaticSource(t *testing.T) {
	_, err := StaticSource(nil).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrSecretNotFound)

	got, err := StaticSource("abc").Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestRedisSource(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	src := NewRedisSource(client, "mobileauth:jwt-secret")

	_, err := src.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrSecretNotFound)

	require.NoError(t, mr.Set("mobileauth:jwt-secret", "from-redis"))
	got, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("from-redis"), got)
}

func TestProviderWithRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("k", "from-redis"))
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	p := NewProvider(NewRedisSource(client, "k"), testLogger())

	mr.SetError("LOADING")
	_, err := p.Secret(context.Background())
	require.Error(t, err)

	mr.SetError("")
	got, err := p.Secret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("from-redis"), got)
}
