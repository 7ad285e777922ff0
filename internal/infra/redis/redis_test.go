package redis

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/sifan077/PowerLink/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	client := NewClient(config.RedisConfig{Host: mr.Host(), Port: port, PoolSize: 4})
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, mr.Addr(), client.Options().Addr)
	assert.Equal(t, 4, client.Options().PoolSize)
	assert.NoError(t, Ping(context.Background(), client))
}

func TestPing_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	mr.Close()

	client := NewClient(config.RedisConfig{Host: mr.Host(), Port: port})
	t.Cleanup(func() { _ = client.Close() })

	assert.Error(t, Ping(context.Background(), client))
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(config.RedisConfig{})
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, "localhost:6379", client.Options().Addr)
}
