package redis

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"geargrid/listing"
)

func TestNewStreamReader(t *testing.T) {
	_, err := NewStreamReader[listing.Event](nil, "listing-events")
	assert.EqualError(t, err, "redis client cannot be nil")

	client := redis.NewClient(&redis.Options{})
	defer client.Close()
	_, err = NewStreamReader[listing.Event](client, "")
	assert.EqualError(t, err, "stream cannot be empty")
}

func TestStreamReader_Subscribe(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, mock, cleanup := setupTest(t)
	defer cleanup()

	want := sampleEvent()
	message, err := DefaultParseToMessage(want)
	require.NoError(t, err)
	mock.ExpectXRead(&redis.XReadArgs{
		Streams: []string{"listing-events", "$"},
		Count:   10,
		Block:   50 * time.Millisecond,
	}).SetVal([]redis.XStream{{
		Stream: "listing-events",
		Messages: []redis.XMessage{
			{ID: "1-0", Values: map[string]any{"data": "not base64!"}},
			{ID: "2-0", Values: message},
		},
	}})

	reader, err := NewStreamReader[listing.Event](client, "listing-events",
		WithReaderLogger[listing.Event](discardLogger),
		WithReaderBlock[listing.Event](50*time.Millisecond),
		WithReaderRetryDelay[listing.Event](10*time.Millisecond),
	)
	require.NoError(t, err)
	reader.Start()

	select {
	case got := <-reader.Subscribe():
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, want.CarID, got.CarID)
		assert.True(t, want.At.Equal(got.At))
	case <-time.After(time.Second):
		t.Fatal("did not receive message in time")
	}

	reader.Close()
	_, ok := <-reader.Subscribe()
	assert.False(t, ok, "channel should be closed")
	// 重複關閉不會 panic
	reader.Close()
}
