package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"log-governor/internal/domain"
)

// Chaves e TTLs padrão do namespace de configuração
const (
	DefaultConfigKey   = "logger_remote_config"
	DefaultCacheKey    = "logger_config_cache"
	DefaultCacheTTL    = 300 * time.Second
	DefaultMaxCacheAge = 1 * time.Hour
)

// Origens possíveis de uma configuração resolvida
const (
	SourceCache   = "cache"
	SourceRemote  = "remote"
	SourceDefault = "default"
)

// defaultSafeLevel é o nível aplicado quando a configuração está desabilitada
const defaultSafeLevel = domain.InfoLevel

// Store gerencia a configuração remota versionada do pipeline de logs
// Cache em dois níveis: entrada TTL em processo + chave de cache no KV
//
// Misses concorrentes de cache não são coalescidos; chamadores que precisem
// evitar thundering herd devem deduplicar acima desta camada
type Store struct {
	storage     domain.KVStorage
	logger      domain.Logger
	configKey   string
	cacheKey    string
	cacheTTL    time.Duration
	maxCacheAge time.Duration

	mu    sync.RWMutex
	local *domain.CacheEntry
}

// StoreOption configura a construção do Store
type StoreOption func(*Store)

// WithKeys substitui as chaves de persistência padrão
func WithKeys(configKey, cacheKey string) StoreOption {
	return func(s *Store) {
		s.configKey = configKey
		s.cacheKey = cacheKey
	}
}

// WithCacheTTL substitui o TTL do cache e a idade máxima aceita
func WithCacheTTL(ttl, maxAge time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
		if maxAge > 0 {
			s.maxCacheAge = maxAge
		}
	}
}

// NewStore cria um novo Store sobre o KV storage fornecido
func NewStore(storage domain.KVStorage, logger domain.Logger, opts ...StoreOption) *Store {
	s := &Store{
		storage:     storage,
		logger:      logger,
		configKey:   DefaultConfigKey,
		cacheKey:    DefaultCacheKey,
		cacheTTL:    DefaultCacheTTL,
		maxCacheAge: DefaultMaxCacheAge,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultConfig devolve a configuração compilada de fallback
func DefaultConfig() *domain.RemoteLogConfig {
	return &domain.RemoteLogConfig{
		GlobalLevel:   domain.InfoLevel,
		ServiceLevels: make(map[string]domain.LogLevel),
		RateLimits:    make(map[string]int),
		LastUpdated:   time.Now().UTC().Format(time.RFC3339),
		Version:       1,
		Enabled:       true,
	}
}

// SanitizeConfig mescla uma atualização parcial sobre os defaults
// É o único caminho que produz um RemoteLogConfig pronto para uso; o
// resultado é um valor novo, nunca um alias da entrada
func SanitizeConfig(partial *domain.RemoteLogConfig) *domain.RemoteLogConfig {
	result := DefaultConfig()
	if partial == nil {
		return result
	}

	if domain.IsValidLevel(partial.GlobalLevel) {
		result.GlobalLevel = partial.GlobalLevel
	}

	for service, level := range partial.ServiceLevels {
		if domain.IsValidLevel(level) {
			result.ServiceLevels[service] = level
		}
	}

	for name, limit := range partial.RateLimits {
		if limit >= 0 {
			result.RateLimits[name] = limit
		}
	}

	if partial.LastUpdated != "" {
		if _, err := time.Parse(time.RFC3339, partial.LastUpdated); err == nil {
			result.LastUpdated = partial.LastUpdated
		}
	}

	if partial.Version >= 1 {
		result.Version = partial.Version
	}

	result.Enabled = partial.Enabled

	return result
}

// FetchRemoteConfig busca a configuração seguindo cache -> remoto
func (s *Store) FetchRemoteConfig(ctx context.Context, useCache bool) domain.FetchResult {
	now := time.Now()

	if useCache {
		if entry := s.readLocalCache(now); entry != nil {
			return domain.FetchResult{
				Success: true,
				Config:  entry.Config,
				Cached:  true,
				Source:  SourceCache,
			}
		}
		if entry := s.readKVCache(ctx, now); entry != nil {
			s.setLocalCache(entry)
			return domain.FetchResult{
				Success: true,
				Config:  entry.Config,
				Cached:  true,
				Source:  SourceCache,
			}
		}
	}

	raw, ok, err := s.storage.Get(ctx, s.configKey)
	if err != nil || !ok {
		return domain.FetchResult{
			Success: false,
			Source:  SourceRemote,
			Error:   errString(err),
		}
	}

	var parsed domain.RemoteLogConfig
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		s.warn("remote config parse failed", err)
		return domain.FetchResult{
			Success: false,
			Source:  SourceRemote,
			Error:   fmt.Sprintf("invalid remote config document: %v", err),
		}
	}

	if issues := ValidateRemoteConfig(&parsed); len(issues) > 0 {
		s.warn("remote config rejected by validation", nil)
		return domain.FetchResult{
			Success: false,
			Source:  SourceRemote,
			Error:   strings.Join(issues, "; "),
		}
	}

	config := SanitizeConfig(&parsed)
	s.writeThroughCache(ctx, config, now)

	return domain.FetchResult{
		Success: true,
		Config:  config,
		Cached:  false,
		Source:  SourceRemote,
	}
}

// SaveRemoteConfig valida e persiste uma configuração, incrementando a versão
// Devolve a versão anterior e a nova para fins de auditoria
func (s *Store) SaveRemoteConfig(ctx context.Context, config *domain.RemoteLogConfig) (previous, current int, err error) {
	if issues := ValidateRemoteConfig(config); len(issues) > 0 {
		return 0, 0, fmt.Errorf("invalid remote config: %s", strings.Join(issues, "; "))
	}

	previous = s.currentVersion(ctx)

	sanitized := SanitizeConfig(config)
	sanitized.Version = previous + 1
	sanitized.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(sanitized)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to marshal remote config: %w", err)
	}

	if err := s.storage.Set(ctx, s.configKey, string(data), 0); err != nil {
		s.warn("remote config save failed", err)
		return 0, 0, fmt.Errorf("failed to persist remote config: %w", err)
	}

	s.writeThroughCache(ctx, sanitized, time.Now())

	if s.logger != nil {
		s.logger.Info("Remote config saved", map[string]interface{}{
			"previous_version": previous,
			"version":          sanitized.Version,
		})
	}

	return previous, sanitized.Version, nil
}

// MergeConfigurations faz merge raso de override sobre base
// Mapas são mesclados chave a chave; escalares do override vencem quando
// presentes; a versão sempre avança
func MergeConfigurations(base, override *domain.RemoteLogConfig) *domain.RemoteLogConfig {
	result := SanitizeConfig(base)

	if override == nil {
		result.Version = result.Version + 1
		return result
	}

	if domain.IsValidLevel(override.GlobalLevel) {
		result.GlobalLevel = override.GlobalLevel
	}
	for service, level := range override.ServiceLevels {
		if domain.IsValidLevel(level) {
			result.ServiceLevels[service] = level
		}
	}
	for name, limit := range override.RateLimits {
		if limit >= 0 {
			result.RateLimits[name] = limit
		}
	}
	if override.LastUpdated != "" {
		result.LastUpdated = override.LastUpdated
	}
	result.Enabled = override.Enabled
	result.Version = result.Version + 1

	return result
}

// GetEffectiveLogLevel resolve o nível efetivo para um serviço
// Configuração desabilitada devolve o default seguro; override por serviço
// vence o nível global
func GetEffectiveLogLevel(config *domain.RemoteLogConfig, service string) domain.LogLevel {
	if config == nil || !config.Enabled {
		return defaultSafeLevel
	}

	if service != "" {
		if level, ok := config.ServiceLevels[service]; ok {
			return level
		}
	}

	return config.GlobalLevel
}

// GetConfigWithFallback garante uma configuração utilizável
// Cadeia remoto -> default, com a origem etiquetada; nunca falha
func (s *Store) GetConfigWithFallback(ctx context.Context) domain.FetchResult {
	result := s.FetchRemoteConfig(ctx, true)
	if result.Success {
		return result
	}

	if s.logger != nil {
		s.logger.Warn("Falling back to default log config", map[string]interface{}{
			"error": result.Error,
		})
	}

	return domain.FetchResult{
		Success: true,
		Config:  DefaultConfig(),
		Source:  SourceDefault,
	}
}

// InvalidateCache descarta as duas camadas de cache
func (s *Store) InvalidateCache(ctx context.Context) error {
	s.mu.Lock()
	s.local = nil
	s.mu.Unlock()

	if err := s.storage.Delete(ctx, s.cacheKey); err != nil {
		s.warn("cache invalidation failed", err)
		return fmt.Errorf("failed to delete cache key: %w", err)
	}
	return nil
}

// currentVersion lê a versão corrente persistida (0 quando ausente)
func (s *Store) currentVersion(ctx context.Context) int {
	raw, ok, err := s.storage.Get(ctx, s.configKey)
	if err != nil || !ok {
		return 0
	}

	var parsed domain.RemoteLogConfig
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return 0
	}
	if parsed.Version < 0 {
		return 0
	}
	return parsed.Version
}

// readLocalCache devolve a entrada em processo quando ainda válida
func (s *Store) readLocalCache(now time.Time) *domain.CacheEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.local.IsValid(now, s.maxCacheAge) {
		return s.local
	}
	return nil
}

// readKVCache devolve a entrada do KV quando ainda válida
func (s *Store) readKVCache(ctx context.Context, now time.Time) *domain.CacheEntry {
	raw, ok, err := s.storage.Get(ctx, s.cacheKey)
	if err != nil || !ok {
		return nil
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		s.warn("cache entry parse failed", err)
		return nil
	}

	if !entry.IsValid(now, s.maxCacheAge) {
		return nil
	}
	return &entry
}

// setLocalCache substitui a entrada em processo
func (s *Store) setLocalCache(entry *domain.CacheEntry) {
	s.mu.Lock()
	s.local = entry
	s.mu.Unlock()
}

// writeThroughCache atualiza as duas camadas de cache
// Falhas de escrita no KV só geram warning: o cache é otimização, não verdade
func (s *Store) writeThroughCache(ctx context.Context, config *domain.RemoteLogConfig, now time.Time) {
	entry := &domain.CacheEntry{
		Config:    config,
		CachedAt:  now,
		ExpiresAt: now.Add(s.cacheTTL),
	}
	s.setLocalCache(entry)

	data, err := json.Marshal(entry)
	if err != nil {
		s.warn("cache entry marshal failed", err)
		return
	}
	if err := s.storage.Set(ctx, s.cacheKey, string(data), s.cacheTTL); err != nil {
		s.warn("cache write-through failed", err)
	}
}

// warn registra um aviso do config store
func (s *Store) warn(msg string, err error) {
	if s.logger == nil {
		return
	}
	fields := map[string]interface{}{}
	if err != nil {
		fields["error"] = err.Error()
	}
	s.logger.Warn("Config store: "+msg, fields)
}

// errString devolve a mensagem do erro ou vazio
func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
