package lock

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreTryAcquire(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "test:lock:", 30*time.Second)
	ctx := context.Background()
	at := time.UnixMilli(1714557600000)

	mock.ExpectSetNX("test:lock:request-42", "node-a|1714557600000", 30*time.Second).SetVal(true)
	mock.ExpectSetNX("test:lock:request-42", "node-b|1714557600000", 30*time.Second).SetVal(false)

	ok, err := store.TryAcquire(ctx, Entry{ResourceID: "request-42", Holder: "node-a", AcquiredAt: at})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.TryAcquire(ctx, Entry{ResourceID: "request-42", Holder: "node-b", AcquiredAt: at})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreGetAndRelease(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "test:lock:", time.Minute)
	ctx := context.Background()

	mock.ExpectGet("test:lock:ticket-5").SetVal("host|1-2|1714557600000")
	mock.ExpectDel("test:lock:ticket-5").SetVal(1)
	mock.ExpectGet("test:lock:ticket-5").RedisNil()

	e, err := store.Get(ctx, "ticket-5")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "ticket-5", e.ResourceID)
	assert.Equal(t, "host|1-2", e.Holder)
	assert.True(t, e.AcquiredAt.Equal(time.UnixMilli(1714557600000)))

	require.NoError(t, store.Release(ctx, "ticket-5"))

	e, err = store.Get(ctx, "ticket-5")
	require.NoError(t, err)
	assert.Nil(t, e)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreDeleteOlderThan(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "test:lock:", time.Minute)
	ctx := context.Background()

	old := "a|1714557600000"
	fresh := "b|1714557650000"
	mock.ExpectScan(0, "test:lock:*", 100).SetVal([]string{"test:lock:ticket-1", "test:lock:ticket-2"}, 0)
	mock.ExpectGet("test:lock:ticket-1").SetVal(old)
	mock.ExpectGet("test:lock:ticket-2").SetVal(fresh)
	mock.ExpectEval(delIfEquals, []string{"test:lock:ticket-1"}, old).SetVal(int64(1))

	ids, err := store.DeleteOlderThan(ctx, time.UnixMilli(1714557630000))
	require.NoError(t, err)
	assert.Equal(t, []string{"ticket-1"}, ids)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecodeEntryRejectsGarbage(t *testing.T) {
	_, err := decodeEntry("x", "no-separator")
	assert.Error(t, err)
	_, err = decodeEntry("x", "holder|notanumber")
	assert.Error(t, err)
}
