package ratelimit

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"log-governor/internal/domain"
)

// errorWindow define a janela de retenção dos timestamps de erro
const errorWindow = 1 * time.Hour

// adaptiveWindow define a janela usada para medir erros por minuto
const adaptiveWindow = 60 * time.Second

// adaptiveSteps mapeia thresholds de erros/minuto para taxas recomendadas
// O maior threshold excedido vence
var adaptiveSteps = []struct {
	Threshold int
	Rate      float64
}{
	{500, 0.01},
	{200, 0.05},
	{100, 0.1},
	{50, 0.5},
}

// Limiter é o núcleo puro do rate limiter de emissão de logs
// Check é uma função total de (config, state, now): seguro para uso
// concorrente desde que cada chamador seja dono do próprio state
type Limiter struct {
	config    domain.RateLimiterConfig
	configErr error
	rng       func() float64
}

// Option configura a construção do Limiter
type Option func(*Limiter)

// WithRandSource injeta a fonte de aleatoriedade usada pelo sampling
// Permite sampling determinístico em testes
func WithRandSource(rng func() float64) Option {
	return func(l *Limiter) {
		l.rng = rng
	}
}

// NewLimiter cria um novo Limiter
// Configuração inválida não gera erro: o limiter degrada para rejeitar tudo
func NewLimiter(config domain.RateLimiterConfig, opts ...Option) *Limiter {
	l := &Limiter{
		config:    config,
		configErr: ValidateConfig(&config),
		rng:       rand.Float64,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config retorna a configuração do limiter
func (l *Limiter) Config() domain.RateLimiterConfig {
	return l.config
}

// ConfigError retorna o erro de validação da configuração, se houver
func (l *Limiter) ConfigError() error {
	return l.configErr
}

// ValidateConfig valida os parâmetros do rate limiter
func ValidateConfig(config *domain.RateLimiterConfig) error {
	if config == nil {
		return fmt.Errorf("rate limiter config cannot be nil")
	}
	if config.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be greater than 0")
	}
	if config.RefillRate <= 0 {
		return fmt.Errorf("refill rate must be greater than 0")
	}
	if config.BurstCapacity < config.MaxTokens {
		return fmt.Errorf("burst capacity must be at least max tokens")
	}
	if config.BackoffMultiplier <= 1 {
		return fmt.Errorf("backoff multiplier must be greater than 1")
	}
	if config.MaxBackoff <= 0 {
		return fmt.Errorf("max backoff must be greater than 0")
	}
	for key, rate := range config.SamplingRates {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("sampling rate for %s must be between 0 and 1", key)
		}
	}
	return nil
}

// NewState cria o snapshot inicial de estado com o bucket cheio
func NewState(config domain.RateLimiterConfig, now time.Time) domain.RateLimiterState {
	return domain.RateLimiterState{
		Tokens:      config.MaxTokens,
		LastRefill:  now,
		ErrorCounts: make(map[string]int),
	}
}

// Check decide se um evento de log pode ser emitido
// Retorna a decisão e o novo snapshot imutável de estado; o chamador (ou o
// wrapper distribuído) é responsável por reter/persistir o resultado
func (l *Limiter) Check(state domain.RateLimiterState, level domain.LogLevel, errorType string, now time.Time) (domain.RateLimitDecision, domain.RateLimiterState) {
	// Configuração inválida degrada para rejeitar tudo em vez de falhar
	if l.configErr != nil {
		return domain.RateLimitDecision{
			Allowed: false,
			Reason:  domain.ReasonMisconfigured,
		}, state
	}

	// 1. Janela de backoff ativa: rejeita sem tocar no estado
	if now.Before(state.BackoffUntil) {
		return domain.RateLimitDecision{
			Allowed:    false,
			Reason:     domain.ReasonBackoff,
			RetryAfter: ceilSeconds(state.BackoffUntil.Sub(now)),
			Tokens:     state.Tokens,
		}, state
	}

	next := cloneState(state)

	// 2. Refill contínuo limitado pela capacidade de burst
	elapsed := now.Sub(state.LastRefill)
	if elapsed > 0 {
		next.Tokens = math.Min(l.config.BurstCapacity, next.Tokens+elapsed.Seconds()*l.config.RefillRate)
	}
	next.LastRefill = now
	next.TotalRequests++

	// 3. Gate de sampling
	sampled, effectiveRate := l.shouldSample(state, level, errorType, now)
	if !sampled {
		// Rejeição por sampling não é falha de capacidade
		next.ConsecutiveRejects = 0
		return domain.RateLimitDecision{
			Allowed:       false,
			Reason:        domain.ReasonSampling,
			Tokens:        next.Tokens,
			EffectiveRate: effectiveRate,
		}, next
	}

	// 4. Gate de tokens com backoff exponencial
	if next.Tokens < 1 {
		next.ConsecutiveRejects++
		backoffSec := math.Min(l.config.MaxBackoff, math.Pow(l.config.BackoffMultiplier, float64(next.ConsecutiveRejects)))
		next.BackoffUntil = now.Add(time.Duration(backoffSec * float64(time.Second)))

		return domain.RateLimitDecision{
			Allowed:       false,
			Reason:        domain.ReasonTokens,
			RetryAfter:    int(math.Ceil(backoffSec)),
			Tokens:        next.Tokens,
			EffectiveRate: effectiveRate,
		}, next
	}

	// 5. Emissão permitida
	next.Tokens--
	next.ConsecutiveRejects = 0
	next.BackoffUntil = time.Time{}
	next.SuccessfulRequests++

	return domain.RateLimitDecision{
		Allowed:       true,
		Tokens:        next.Tokens,
		EffectiveRate: effectiveRate,
	}, next
}

// shouldSample aplica a taxa base e, para error/warn, a redução adaptativa
// baseada na frequência de erros da janela de 60s
func (l *Limiter) shouldSample(state domain.RateLimiterState, level domain.LogLevel, errorType string, now time.Time) (bool, float64) {
	rate := l.baseRate(level, errorType)

	if l.config.AdaptiveSampling && (level == domain.ErrorLevel || level == domain.WarnLevel) {
		epm := errorsPerMinute(state.ErrorTimestamps, now)
		threshold := l.config.ErrorThreshold
		if threshold <= 0 {
			threshold = adaptiveSteps[len(adaptiveSteps)-1].Threshold
		}
		if epm > threshold {
			if recommended, ok := recommendedRate(epm); ok {
				rate = math.Min(rate, recommended)
			}
		}
	}

	return l.rng() < rate, rate
}

// baseRate resolve a taxa base: tipo de erro > nível > 1.0
func (l *Limiter) baseRate(level domain.LogLevel, errorType string) float64 {
	if errorType != "" {
		if rate, ok := l.config.SamplingRates[errorType]; ok {
			return rate
		}
	}
	if rate, ok := l.config.SamplingRates[string(level)]; ok {
		return rate
	}
	return 1.0
}

// recommendedRate devolve a taxa do maior threshold excedido
func recommendedRate(errorsPerMin int) (float64, bool) {
	for _, step := range adaptiveSteps {
		if errorsPerMin > step.Threshold {
			return step.Rate, true
		}
	}
	return 0, false
}

// errorsPerMinute conta os timestamps dentro da janela de 60s
func errorsPerMinute(timestamps []time.Time, now time.Time) int {
	cutoff := now.Add(-adaptiveWindow)
	count := 0
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}

// cloneState produz uma cópia profunda do snapshot de estado
func cloneState(state domain.RateLimiterState) domain.RateLimiterState {
	next := state

	next.ErrorCounts = make(map[string]int, len(state.ErrorCounts))
	for k, v := range state.ErrorCounts {
		next.ErrorCounts[k] = v
	}

	next.ErrorTimestamps = make([]time.Time, len(state.ErrorTimestamps))
	copy(next.ErrorTimestamps, state.ErrorTimestamps)

	return next
}

// ceilSeconds converte uma duração em segundos inteiros arredondados para cima
func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
