package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"geargrid/models"
)

func sampleCars() []models.Car {
	seats := 5
	return []models.Car{
		{
			ID:        uuid.MustParse("0190c000-0000-7000-8000-000000000001"),
			Make:      "Toyota",
			Model:     "Corolla",
			Year:      2020,
			Price:     18500.5,
			Color:     "Red",
			Seats:     &seats,
			Status:    models.CarStatusAvailable,
			Images:    []string{"https://cdn.test/cars/a/1.png"},
			CreatedAt: time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC),
		},
	}
}

func TestIndexCache_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("hit on current version", func(t *testing.T) {
		client, mock, cleanup := setupTest(t)
		defer cleanup()
		data, err := msgpack.Marshal(sampleCars())
		require.NoError(t, err)

		mock.ExpectGet("test:version").SetVal("3")
		mock.ExpectGet("test:v3:q:red").SetVal(string(data))

		cache := NewIndexCache(client, WithIndexCachePrefix("test:"))
		cars, version, ok, err := cache.Load(ctx, "red")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(3), version)
		require.Len(t, cars, 1)
		assert.Equal(t, sampleCars()[0].ID, cars[0].ID)
		assert.Equal(t, "Corolla", cars[0].Model)
		assert.Equal(t, []string{"https://cdn.test/cars/a/1.png"}, []string(cars[0].Images))
		require.NotNil(t, cars[0].Seats)
		assert.Equal(t, 5, *cars[0].Seats)
		assert.True(t, sampleCars()[0].CreatedAt.Equal(cars[0].CreatedAt))
	})

	t.Run("miss without version", func(t *testing.T) {
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		mock.ExpectGet("test:version").RedisNil()
		mock.ExpectGet("test:v0:q:").RedisNil()

		cache := NewIndexCache(client, WithIndexCachePrefix("test:"))
		cars, version, ok, err := cache.Load(ctx, "")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, cars)
		assert.Zero(t, version)
	})

	t.Run("redis error", func(t *testing.T) {
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		mock.ExpectGet("test:version").SetErr(errors.New("connection refused"))

		cache := NewIndexCache(client, WithIndexCachePrefix("test:"))
		_, _, ok, err := cache.Load(ctx, "red")
		assert.Error(t, err)
		assert.False(t, ok)
	})
}

func TestIndexCache_Store(t *testing.T) {
	client, mock, cleanup := setupTest(t)
	defer cleanup()
	data, err := msgpack.Marshal(sampleCars())
	require.NoError(t, err)

	mock.ExpectSet("test:v7:q:red", data, 30*time.Second).SetVal("OK")

	cache := NewIndexCache(client, WithIndexCachePrefix("test:"), WithIndexCacheTTL(30*time.Second))
	require.NoError(t, cache.Store(context.Background(), "red", 7, sampleCars()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIndexCache_StoreAfterInvalidate(t *testing.T) {
	client, mock, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()
	data, err := msgpack.Marshal(sampleCars())
	require.NoError(t, err)

	// 查詢未命中後發生異動，舊結果必須寫回讀到的版本
	mock.ExpectGet("test:version").SetVal("4")
	mock.ExpectGet("test:v4:q:red").RedisNil()
	mock.ExpectIncr("test:version").SetVal(5)
	mock.ExpectSet("test:v4:q:red", data, DefaultIndexTTL).SetVal("OK")
	mock.ExpectGet("test:version").SetVal("5")
	mock.ExpectGet("test:v5:q:red").RedisNil()

	cache := NewIndexCache(client, WithIndexCachePrefix("test:"))
	_, version, ok, err := cache.Load(ctx, "red")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, cache.Invalidate(ctx))
	require.NoError(t, cache.Store(ctx, "red", version, sampleCars()))

	_, _, ok, err = cache.Load(ctx, "red")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIndexCache_Invalidate(t *testing.T) {
	client, mock, cleanup := setupTest(t)
	defer cleanup()

	mock.ExpectIncr("geargrid:listing:version").SetVal(1)
	mock.ExpectIncr("geargrid:listing:version").SetErr(errors.New("readonly"))

	cache := NewIndexCache(client)
	require.NoError(t, cache.Invalidate(context.Background()))
	assert.Error(t, cache.Invalidate(context.Background()))
}
