package redis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishJSONToStream_ReadLatest(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := PublishJSONToStream(ctx, client, "test:stream", 0, map[string]int{"seq": i})
		require.NoError(t, err)
	}

	messages, err := ReadLatestFromStream(ctx, client, "test:stream", 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	var payload map[string]int
	require.NoError(t, json.Unmarshal([]byte(messages[0].Values["data"].(string)), &payload))
	assert.Equal(t, 3, payload["seq"])
	assert.NotEmpty(t, messages[0].Values["timestamp"])
}

func TestPublishToStream_FormatsScalars(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	_, err := PublishToStream(ctx, client, "scalars", 0, map[string]interface{}{
		"f": 1.5,
		"b": true,
		"i": 42,
	})
	require.NoError(t, err)

	messages, err := ReadLatestFromStream(ctx, client, "scalars", 1)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "1.5", messages[0].Values["f"])
	assert.Equal(t, "true", messages[0].Values["b"])
	assert.Equal(t, "42", messages[0].Values["i"])
}

func TestReadLatestFromStream_Missing(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	messages, err := ReadLatestFromStream(context.Background(), client, "nope", 5)
	require.NoError(t, err)
	assert.Empty(t, messages)
}
