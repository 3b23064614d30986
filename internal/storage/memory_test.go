package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"log-governor/internal/domain"
)

func TestMemoryStorage_SetAndGet(t *testing.T) {
	store := NewMemoryStorage(nil)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "key1", "value1", 0))

	value, ok, err := store.Get(ctx, "key1")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value1", value)
}

func TestMemoryStorage_GetMissingKey(t *testing.T) {
	store := NewMemoryStorage(nil)
	defer store.Close()

	value, ok, err := store.Get(context.Background(), "missing")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)
}

func TestMemoryStorage_TTLExpiry(t *testing.T) {
	store := NewMemoryStorage(nil)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "ephemeral", "value", 1*time.Second))

	// Antes do TTL a chave está visível
	_, ok, err := store.Get(ctx, "ephemeral")
	require.NoError(t, err)
	assert.True(t, ok)

	// Depois do TTL a expiração preguiçosa devolve ausência
	time.Sleep(1100 * time.Millisecond)

	value, ok, err := store.Get(ctx, "ephemeral")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)

	exists, err := store.Exists(ctx, "ephemeral")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStorage_ZeroTTLNeverExpires(t *testing.T) {
	store := NewMemoryStorage(nil)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "durable", "value", 0))

	time.Sleep(50 * time.Millisecond)

	_, ok, err := store.Get(ctx, "durable")
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStorage_SetOverwritesValueAndTTL(t *testing.T) {
	store := NewMemoryStorage(nil)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "key1", "old", 20*time.Millisecond))
	require.NoError(t, store.Set(ctx, "key1", "new", 0))

	time.Sleep(50 * time.Millisecond)

	value, ok, err := store.Get(ctx, "key1")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "new", value)
}

func TestMemoryStorage_Delete(t *testing.T) {
	store := NewMemoryStorage(nil)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "key1", "value1", 0))
	require.NoError(t, store.Delete(ctx, "key1"))

	_, ok, err := store.Get(ctx, "key1")
	assert.NoError(t, err)
	assert.False(t, ok)

	// Apagar chave inexistente não é erro
	assert.NoError(t, store.Delete(ctx, "missing"))
}

func TestMemoryStorage_TypeAndHealth(t *testing.T) {
	store := NewMemoryStorage(nil)
	defer store.Close()

	assert.Equal(t, domain.MemoryStorageType, store.Type())
	assert.NoError(t, store.Health(context.Background()))
}

func TestMemoryStorage_CloseDiscardsData(t *testing.T) {
	store := NewMemoryStorage(nil)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "key1", "value1", 0))
	require.NoError(t, store.Close())

	_, ok, err := store.Get(ctx, "key1")
	assert.NoError(t, err)
	assert.False(t, ok)

	// Close é idempotente
	assert.NoError(t, store.Close())
}

func TestMemoryStorage_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStorage(nil)
	defer store.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", n%5)
			_ = store.Set(ctx, key, "value", 0)
			_, _, _ = store.Get(ctx, key)
			_, _ = store.Exists(ctx, key)
		}(i)
	}
	wg.Wait()
}

func TestCheckStorageHealth_RoundTripOnMemory(t *testing.T) {
	store := NewMemoryStorage(nil)
	defer store.Close()

	report := CheckStorageHealth(context.Background(), store)

	assert.True(t, report.Healthy)
	assert.Equal(t, domain.MemoryStorageType, report.Backend)
	assert.Empty(t, report.Error)
	assert.GreaterOrEqual(t, report.Latency, 0.0)
}
