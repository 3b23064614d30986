package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"log-governor/internal/domain"
)

// fakeKV é um KVStorage em memória para testes, sem expiração
type fakeKV struct {
	mu   sync.Mutex
	data map[string]string

	failGet bool
	failSet bool
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return "", false, errors.New("storage unavailable")
	}
	value, ok := f.data[key]
	return value, ok, nil
}

func (f *fakeKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return errors.New("storage unavailable")
	}
	f.data[key] = value
	return nil
}

func (f *fakeKV) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeKV) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok, nil
}

func (f *fakeKV) Type() domain.StorageType         { return domain.MemoryStorageType }
func (f *fakeKV) Health(ctx context.Context) error { return nil }
func (f *fakeKV) Close() error                     { return nil }

func TestDistributedLimiter_StateKey(t *testing.T) {
	assert.Equal(t, "rate_limit:svc-a:/orders", StateKey("svc-a", "/orders"))
}

func TestDistributedLimiter_Check_PersistsStateBetweenCalls(t *testing.T) {
	kv := newFakeKV()
	config := createTestConfig()
	limiter := NewDistributedLimiter(config, kv, nil, WithRandSource(fixedRand(0)))

	ctx := context.Background()

	// Cinco emissões esgotam o bucket persistido
	for i := 0; i < 5; i++ {
		decision := limiter.Check(ctx, "svc-a", "/orders", domain.InfoLevel, "")
		assert.True(t, decision.Allowed, "request %d should be allowed", i+1)
	}

	decision := limiter.Check(ctx, "svc-a", "/orders", domain.InfoLevel, "")
	assert.False(t, decision.Allowed)
	assert.Equal(t, domain.ReasonTokens, decision.Reason)

	// Pares distintos têm buckets independentes
	decision = limiter.Check(ctx, "svc-b", "/orders", domain.InfoLevel, "")
	assert.True(t, decision.Allowed)
}

func TestDistributedLimiter_Check_FailsOpenOnStorageError(t *testing.T) {
	kv := newFakeKV()
	kv.failGet = true
	config := createTestConfig()
	limiter := NewDistributedLimiter(config, kv, nil)

	decision := limiter.Check(context.Background(), "svc-a", "/orders", domain.InfoLevel, "")

	// Disponibilidade vence precisão: storage indisponível nunca bloqueia
	assert.True(t, decision.Allowed)
	assert.Equal(t, config.MaxTokens, decision.Tokens)
	assert.Equal(t, 1.0, decision.EffectiveRate)
}

func TestDistributedLimiter_Check_FailsOpenOnSaveError(t *testing.T) {
	kv := newFakeKV()
	kv.failSet = true
	config := createTestConfig()
	limiter := NewDistributedLimiter(config, kv, nil, WithRandSource(fixedRand(0)))

	decision := limiter.Check(context.Background(), "svc-a", "/orders", domain.InfoLevel, "")

	assert.True(t, decision.Allowed)
	assert.Equal(t, config.MaxTokens, decision.Tokens)
}

func TestDistributedLimiter_Check_DiscardsCorruptState(t *testing.T) {
	kv := newFakeKV()
	config := createTestConfig()
	limiter := NewDistributedLimiter(config, kv, nil, WithRandSource(fixedRand(0)))

	ctx := context.Background()
	key := StateKey("svc-a", "/orders")
	assert.NoError(t, kv.Set(ctx, key, "not json at all", 0))

	// Registro corrompido recomeça do bucket cheio em vez de falhar
	decision := limiter.Check(ctx, "svc-a", "/orders", domain.InfoLevel, "")
	assert.True(t, decision.Allowed)

	state, err := limiter.Status(ctx, "svc-a", "/orders")
	assert.NoError(t, err)
	assert.Equal(t, config.MaxTokens-1, state.Tokens)
}

func TestDistributedLimiter_RecordErrorAndAnalyze(t *testing.T) {
	kv := newFakeKV()
	config := createTestConfig()
	limiter := NewDistributedLimiter(config, kv, nil)

	ctx := context.Background()
	limiter.RecordError(ctx, "svc-a", "/orders", "server_error")
	limiter.RecordError(ctx, "svc-a", "/orders", "server_error")
	limiter.RecordError(ctx, "svc-a", "/orders", "timeout")

	report, err := limiter.Analyze(ctx, "svc-a", "/orders")

	assert.NoError(t, err)
	assert.Equal(t, 3, report.TotalErrors)
	assert.Equal(t, 3, report.ErrorsPerMinute)
	assert.Equal(t, 2, report.Counts["server_error"])
	assert.Equal(t, 1, report.Counts["timeout"])
}

func TestDistributedLimiter_Reset_ClearsPersistedState(t *testing.T) {
	kv := newFakeKV()
	config := createTestConfig()
	limiter := NewDistributedLimiter(config, kv, nil, WithRandSource(fixedRand(0)))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		limiter.Check(ctx, "svc-a", "/orders", domain.InfoLevel, "")
	}

	assert.NoError(t, limiter.Reset(ctx, "svc-a", "/orders"))

	// Depois do reset o bucket volta cheio
	decision := limiter.Check(ctx, "svc-a", "/orders", domain.InfoLevel, "")
	assert.True(t, decision.Allowed)
}

func TestDistributedLimiter_SetOverrides_AppliesPerEndpointLimits(t *testing.T) {
	kv := newFakeKV()
	config := createTestConfig()
	limiter := NewDistributedLimiter(config, kv, nil, WithRandSource(fixedRand(0)))
	limiter.SetOverrides(map[string]domain.EndpointOverride{
		"/bulk": {MaxTokens: 2, RefillRate: 0.001},
	})

	ctx := context.Background()

	// O endpoint com override esgota em 2 emissões
	assert.True(t, limiter.Check(ctx, "svc-a", "/bulk", domain.InfoLevel, "").Allowed)
	assert.True(t, limiter.Check(ctx, "svc-a", "/bulk", domain.InfoLevel, "").Allowed)
	assert.False(t, limiter.Check(ctx, "svc-a", "/bulk", domain.InfoLevel, "").Allowed)

	// Endpoints sem override seguem a configuração base
	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Check(ctx, "svc-a", "/orders", domain.InfoLevel, "").Allowed)
	}
}

func TestDistributedLimiter_UpdateConfig_ReplacesBaseAtRuntime(t *testing.T) {
	kv := newFakeKV()
	config := createTestConfig()
	limiter := NewDistributedLimiter(config, kv, nil, WithRandSource(fixedRand(0.5)))

	ctx := context.Background()
	assert.True(t, limiter.Check(ctx, "svc-a", "/orders", domain.InfoLevel, "").Allowed)

	// Nova configuração com sampling agressivo passa a valer imediatamente
	updated := createTestConfig()
	updated.SamplingRates = map[string]float64{"info": 0.1}
	limiter.UpdateConfig(updated)

	decision := limiter.Check(ctx, "svc-a", "/orders", domain.InfoLevel, "")
	assert.False(t, decision.Allowed)
	assert.Equal(t, domain.ReasonSampling, decision.Reason)
}
