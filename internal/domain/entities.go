package domain

import "time"

// LogLevel define os níveis de log reconhecidos pelo pipeline
type LogLevel string

const (
	TraceLevel LogLevel = "trace"
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	FatalLevel LogLevel = "fatal"
)

// levelWeights define a ordem relativa entre os níveis
var levelWeights = map[LogLevel]int{
	TraceLevel: 0,
	DebugLevel: 1,
	InfoLevel:  2,
	WarnLevel:  3,
	ErrorLevel: 4,
	FatalLevel: 5,
}

// IsValidLevel verifica se um nível de log é reconhecido
func IsValidLevel(level LogLevel) bool {
	_, ok := levelWeights[level]
	return ok
}

// LevelEnabled verifica se um nível passa pelo threshold efetivo
func LevelEnabled(level, threshold LogLevel) bool {
	lw, ok := levelWeights[level]
	if !ok {
		return false
	}
	tw, ok := levelWeights[threshold]
	if !ok {
		return false
	}
	return lw >= tw
}

// AllLevels retorna os níveis suportados em ordem de severidade
func AllLevels() []LogLevel {
	return []LogLevel{TraceLevel, DebugLevel, InfoLevel, WarnLevel, ErrorLevel, FatalLevel}
}

// RateLimiterConfig define os parâmetros imutáveis do rate limiter de logs
type RateLimiterConfig struct {
	MaxTokens         float64            `json:"maxTokens"`
	RefillRate        float64            `json:"refillRate"` // tokens por segundo
	BurstCapacity     float64            `json:"burstCapacity"`
	BackoffMultiplier float64            `json:"backoffMultiplier"`
	MaxBackoff        float64            `json:"maxBackoff"` // em segundos
	SamplingRates     map[string]float64 `json:"samplingRates"`
	AdaptiveSampling  bool               `json:"adaptiveSampling"`
	ErrorThreshold    int                `json:"errorThreshold"` // erros/minuto que disparam redução
}

// RateLimiterState é um snapshot imutável do estado do rate limiter
// Toda transição produz um novo snapshot; o chamador retém/persiste o resultado
type RateLimiterState struct {
	Tokens             float64        `json:"tokens"`
	LastRefill         time.Time      `json:"lastRefill"`
	ConsecutiveRejects int            `json:"consecutiveRejects"`
	BackoffUntil       time.Time      `json:"backoffUntil"`
	ErrorCounts        map[string]int `json:"errorCounts"`
	ErrorTimestamps    []time.Time    `json:"errorTimestamps"`
	TotalRequests      int64          `json:"totalRequests"`
	SuccessfulRequests int64          `json:"successfulRequests"`
}

// RejectReason identifica o motivo de uma rejeição de emissão
type RejectReason string

const (
	ReasonNone          RejectReason = ""
	ReasonBackoff       RejectReason = "backoff"
	ReasonSampling      RejectReason = "sampling"
	ReasonTokens        RejectReason = "tokens"
	ReasonMisconfigured RejectReason = "misconfigured"
)

// RateLimitDecision representa o resultado de uma verificação de emissão
type RateLimitDecision struct {
	Allowed       bool         `json:"allowed"`
	Reason        RejectReason `json:"reason,omitempty"`
	RetryAfter    int          `json:"retryAfter,omitempty"` // em segundos
	Tokens        float64      `json:"tokens"`
	EffectiveRate float64      `json:"effectiveRate"`
}

// ErrorFrequencyReport resume a frequência de erros observada
// Usado internamente pelo sampling adaptativo e exposto para dashboards
type ErrorFrequencyReport struct {
	TotalErrors     int            `json:"totalErrors"`
	ErrorsPerMinute int            `json:"errorsPerMinute"`
	TopErrors       []ErrorCount   `json:"topErrors"`
	RecommendedRate float64        `json:"recommendedRate"`
	Counts          map[string]int `json:"counts"`
}

// ErrorCount é um par tipo de erro / contagem
type ErrorCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// EndpointOverride substitui max_tokens/refill_rate para um endpoint específico
type EndpointOverride struct {
	MaxTokens  float64 `json:"maxTokens"`
	RefillRate float64 `json:"refillRate"`
}

// RemoteLogConfig é a configuração remota versionada do pipeline de logs
// Imutável após sanitização; nunca é apagada, apenas substituída
type RemoteLogConfig struct {
	GlobalLevel   LogLevel            `json:"globalLevel"`
	ServiceLevels map[string]LogLevel `json:"serviceLevels"`
	RateLimits    map[string]int      `json:"rateLimits"`
	LastUpdated   string              `json:"lastUpdated"` // ISO timestamp
	Version       int                 `json:"version"`
	Enabled       bool                `json:"enabled"`
}

// CacheEntry envolve uma configuração remota cacheada
type CacheEntry struct {
	Config    *RemoteLogConfig `json:"config"`
	CachedAt  time.Time        `json:"cachedAt"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

// IsValid verifica se a entrada de cache ainda pode ser usada
func (e *CacheEntry) IsValid(now time.Time, maxAge time.Duration) bool {
	if e == nil || e.Config == nil {
		return false
	}
	if !now.Before(e.ExpiresAt) {
		return false
	}
	return now.Sub(e.CachedAt) < maxAge
}

// StorageType define os tipos de backend KV disponíveis
type StorageType string

const (
	MemoryStorageType     StorageType = "memory"
	RedisStorageType      StorageType = "redis"
	EdgeConfigStorageType StorageType = "edge-config"
)

// StorageConfig contém a configuração imutável de um backend KV
type StorageConfig struct {
	Type             StorageType
	ConnectionString string
	EdgeConfigID     string
	EdgeConfigToken  string
	EdgeConfigURL    string
	TTLDefault       time.Duration
	MaxRetries       int
	Timeout          time.Duration
	FallbackEnabled  bool
}

// LoggerContext carrega dados de correlação por unidade de trabalho
// RequestID está sempre presente; campos de PII chegam pseudonimizados
type LoggerContext struct {
	RequestID     string `json:"requestId"`
	TraceID       string `json:"traceId,omitempty"`
	SpanID        string `json:"spanId,omitempty"`
	UserID        string `json:"userId,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`
	EventName     string `json:"eventName,omitempty"`
	EventCategory string `json:"eventCategory,omitempty"`
}

// FetchResult representa o resultado de uma busca de configuração remota
type FetchResult struct {
	Success bool             `json:"success"`
	Config  *RemoteLogConfig `json:"config,omitempty"`
	Cached  bool             `json:"cached"`
	Source  string           `json:"source"` // cache | remote | default
	Error   string           `json:"error,omitempty"`
}
