package publisher

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(t *testing.T, prefix string, count, maxLen int) (*RedisPublisher, *redis.Client) {
	t.Helper()
	ctx := context.Background()

	publisher := NewRedisPublisher(ctx, "localhost:6379", 0, prefix, count, maxLen)
	if err := publisher.Ping(); err != nil {
		publisher.Close()
		t.Skip("Redis is not available, skipping test")
	}

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   0,
	})

	cleanup := func() {
		for i := 0; i < count; i++ {
			client.Del(ctx, publisher.StreamName(i))
		}
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		client.Close()
		publisher.Close()
	})
	return publisher, client
}

func TestRedisPublisher(t *testing.T) {
	ctx := context.Background()
	publisher, client := newTestPublisher(t, "test_fares", 1, 100)

	quote := []byte(`{"route":"MAD-BCN/2025-01-10","price":1234}`)
	err := publisher.Publish("MAD-BCN/2025-01-10", quote)
	require.NoError(t, err)

	messages, err := client.XRange(ctx, "test_fares:0", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 1)

	encoded, ok := messages[0].Values["MAD-BCN/2025-01-10"].(string)
	require.True(t, ok)

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, quote, decoded)
}

func TestRedisPublisherShards(t *testing.T) {
	ctx := context.Background()
	publisher, client := newTestPublisher(t, "test_fares_shard", 3, 100)

	for i := 0; i < 30; i++ {
		require.NoError(t, publisher.Publish(fmt.Sprintf("route-%d", i), []byte("{}")))
	}

	var total int64
	for i := 0; i < 3; i++ {
		n, err := client.XLen(ctx, publisher.StreamName(i)).Result()
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, int64(30), total)
}

func TestRedisPublisherTrimStreams(t *testing.T) {
	ctx := context.Background()
	publisher, client := newTestPublisher(t, "test_fares_trim", 1, 5)

	for i := 0; i < 20; i++ {
		require.NoError(t, publisher.Publish("route", []byte(time.Now().String())))
	}

	require.NoError(t, publisher.TrimStreams())

	n, err := client.XLen(ctx, "test_fares_trim:0").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestStreamName(t *testing.T) {
	publisher := NewRedisPublisher(context.Background(), "localhost:6379", 0, "fares", 0, 10)
	defer publisher.Close()

	assert.Equal(t, "fares:2", publisher.StreamName(2))
	assert.Equal(t, 1, publisher.streamCount)
}
