package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"log-governor/internal/domain"
)

// stateTTL define o TTL do estado persistido por (cliente, endpoint)
const stateTTL = 1 * time.Hour

// DistributedLimiter persiste o estado do limiter em KV storage, chaveado por
// (clientId, endpoint), permitindo governança de volume entre instâncias
//
// O read-modify-write contra o storage compartilhado não é atômico: checagens
// concorrentes da mesma chave podem admitir além do orçamento nominal de
// tokens. Precisão best-effort aceita em troca de disponibilidade
type DistributedLimiter struct {
	base    *Limiter
	storage domain.KVStorage
	logger  domain.Logger

	mu        sync.RWMutex
	overrides map[string]domain.EndpointOverride
	limiters  map[string]*Limiter
}

// NewDistributedLimiter cria um novo DistributedLimiter
func NewDistributedLimiter(config domain.RateLimiterConfig, storage domain.KVStorage, logger domain.Logger, opts ...Option) *DistributedLimiter {
	return &DistributedLimiter{
		base:      NewLimiter(config, opts...),
		storage:   storage,
		logger:    logger,
		overrides: make(map[string]domain.EndpointOverride),
		limiters:  make(map[string]*Limiter),
	}
}

// StateKey constrói a chave de persistência para um par cliente/endpoint
func StateKey(clientID, endpoint string) string {
	return fmt.Sprintf("rate_limit:%s:%s", clientID, endpoint)
}

// SetOverrides substitui o conjunto de overrides por endpoint
func (d *DistributedLimiter) SetOverrides(overrides map[string]domain.EndpointOverride) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.overrides = make(map[string]domain.EndpointOverride, len(overrides))
	for k, v := range overrides {
		d.overrides[k] = v
	}
	// Limiters derivados ficam obsoletos quando os overrides mudam
	d.limiters = make(map[string]*Limiter)
}

// UpdateConfig substitui a configuração base em tempo de execução
// Usado pelo watcher de overrides para aplicar novas taxas de sampling
func (d *DistributedLimiter) UpdateConfig(config domain.RateLimiterConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.base = NewLimiter(config, WithRandSource(d.base.rng))
	d.limiters = make(map[string]*Limiter)
}

// Check decide a emissão para um par cliente/endpoint com estado compartilhado
// Falha aberta: qualquer erro de storage resulta em permissão com o bucket
// cheio reportado, priorizando disponibilidade sobre precisão
func (d *DistributedLimiter) Check(ctx context.Context, clientID, endpoint string, level domain.LogLevel, errorType string) domain.RateLimitDecision {
	limiter := d.limiterFor(endpoint)
	now := time.Now()
	key := StateKey(clientID, endpoint)

	state, err := d.loadState(ctx, key, limiter.Config(), now)
	if err != nil {
		return d.failOpen(key, "state load failed", err, limiter)
	}

	decision, next := limiter.Check(state, level, errorType, now)

	if err := d.saveState(ctx, key, next); err != nil {
		return d.failOpen(key, "state save failed", err, limiter)
	}

	return decision
}

// RecordError registra a ocorrência de um erro no estado compartilhado
func (d *DistributedLimiter) RecordError(ctx context.Context, clientID, endpoint, errorType string) {
	limiter := d.limiterFor(endpoint)
	now := time.Now()
	key := StateKey(clientID, endpoint)

	state, err := d.loadState(ctx, key, limiter.Config(), now)
	if err != nil {
		d.warn(key, "error count load failed", err)
		return
	}

	next := UpdateErrorCounts(state, errorType, now)
	if err := d.saveState(ctx, key, next); err != nil {
		d.warn(key, "error count save failed", err)
	}
}

// Analyze devolve o relatório de frequência de erros de um par cliente/endpoint
func (d *DistributedLimiter) Analyze(ctx context.Context, clientID, endpoint string) (domain.ErrorFrequencyReport, error) {
	limiter := d.limiterFor(endpoint)
	now := time.Now()

	state, err := d.loadState(ctx, StateKey(clientID, endpoint), limiter.Config(), now)
	if err != nil {
		return domain.ErrorFrequencyReport{}, fmt.Errorf("failed to load limiter state: %w", err)
	}

	return AnalyzeErrorFrequency(state, now), nil
}

// Status devolve o snapshot de estado atual de um par cliente/endpoint
func (d *DistributedLimiter) Status(ctx context.Context, clientID, endpoint string) (domain.RateLimiterState, error) {
	limiter := d.limiterFor(endpoint)

	state, err := d.loadState(ctx, StateKey(clientID, endpoint), limiter.Config(), time.Now())
	if err != nil {
		return domain.RateLimiterState{}, fmt.Errorf("failed to load limiter state: %w", err)
	}
	return state, nil
}

// Reset apaga o estado persistido de um par cliente/endpoint
func (d *DistributedLimiter) Reset(ctx context.Context, clientID, endpoint string) error {
	key := StateKey(clientID, endpoint)
	if err := d.storage.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to reset key %s: %w", key, err)
	}

	if d.logger != nil {
		d.logger.Info("Rate limit state reset", map[string]interface{}{
			"key": key,
		})
	}
	return nil
}

// limiterFor resolve o limiter do endpoint, aplicando override se existir
func (d *DistributedLimiter) limiterFor(endpoint string) *Limiter {
	d.mu.RLock()
	if limiter, ok := d.limiters[endpoint]; ok {
		d.mu.RUnlock()
		return limiter
	}
	base := d.base
	override, hasOverride := d.overrides[endpoint]
	d.mu.RUnlock()

	if !hasOverride {
		return base
	}

	config := base.Config()
	config.MaxTokens = override.MaxTokens
	config.RefillRate = override.RefillRate
	if config.BurstCapacity < config.MaxTokens {
		config.BurstCapacity = config.MaxTokens
	}
	limiter := NewLimiter(config, WithRandSource(base.rng))

	d.mu.Lock()
	d.limiters[endpoint] = limiter
	d.mu.Unlock()

	return limiter
}

// loadState carrega o estado persistido ou cria um snapshot inicial
func (d *DistributedLimiter) loadState(ctx context.Context, key string, config domain.RateLimiterConfig, now time.Time) (domain.RateLimiterState, error) {
	raw, ok, err := d.storage.Get(ctx, key)
	if err != nil {
		return domain.RateLimiterState{}, err
	}
	if !ok {
		return NewState(config, now), nil
	}

	var state domain.RateLimiterState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		// Registro corrompido: recomeça do estado inicial em vez de falhar
		d.warn(key, "corrupt limiter state discarded", err)
		return NewState(config, now), nil
	}
	if state.ErrorCounts == nil {
		state.ErrorCounts = make(map[string]int)
	}
	return state, nil
}

// saveState persiste o snapshot com TTL de uma hora
func (d *DistributedLimiter) saveState(ctx context.Context, key string, state domain.RateLimiterState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal limiter state: %w", err)
	}
	return d.storage.Set(ctx, key, string(data), stateTTL)
}

// failOpen devolve permissão com bucket cheio quando o storage falha
func (d *DistributedLimiter) failOpen(key, reason string, err error, limiter *Limiter) domain.RateLimitDecision {
	d.warn(key, reason+", failing open", err)
	return domain.RateLimitDecision{
		Allowed:       true,
		Tokens:        limiter.Config().MaxTokens,
		EffectiveRate: 1.0,
	}
}

// warn registra um aviso de operação distribuída
func (d *DistributedLimiter) warn(key, msg string, err error) {
	if d.logger == nil {
		return
	}
	fields := map[string]interface{}{"key": key}
	if err != nil {
		fields["error"] = err.Error()
	}
	d.logger.Warn("Distributed rate limiter: "+msg, fields)
}
