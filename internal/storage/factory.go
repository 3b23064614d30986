package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"log-governor/internal/domain"
)

// Defaults aplicados quando a configuração numérica é inválida
const (
	defaultTTL     = 1 * time.Hour
	defaultRetries = 3
	defaultTimeout = 2 * time.Second
)

// StorageFactory cria instâncias de storage seguindo Strategy Pattern
// O contrato da factory é total: nunca falha e nunca retorna nil; qualquer
// configuração inválida ou falha de construção degrada para Memory
type StorageFactory struct {
	logger domain.Logger
}

// NewStorageFactory cria uma nova instância da factory
func NewStorageFactory(logger domain.Logger) *StorageFactory {
	return &StorageFactory{logger: logger}
}

// CreateStorage cria uma instância de storage baseada na configuração
func (f *StorageFactory) CreateStorage(ctx context.Context, config *domain.StorageConfig) domain.KVStorage {
	sanitized := f.sanitizeConfig(config)

	if err := ValidateStorageConfig(sanitized); err != nil {
		return f.degrade("invalid storage config", err, sanitized)
	}

	switch sanitized.Type {
	case domain.RedisStorageType:
		store, err := f.createRedisStorage(ctx, sanitized)
		if err != nil {
			return f.degrade("redis construction failed", err, sanitized)
		}
		return store

	case domain.EdgeConfigStorageType:
		store, err := NewEdgeConfigStorage(sanitized, f.logger)
		if err != nil {
			return f.degrade("edge config construction failed", err, sanitized)
		}
		return store

	default:
		return NewMemoryStorage(f.logger)
	}
}

// CreateStorageFromEnv resolve o backend pela precedência de ambiente:
// connection string explícita -> redis; id+token de edge config -> edge;
// caso contrário memória
func (f *StorageFactory) CreateStorageFromEnv(ctx context.Context, config *domain.StorageConfig) domain.KVStorage {
	resolved := *config

	switch {
	case resolved.ConnectionString != "":
		resolved.Type = domain.RedisStorageType
	case resolved.EdgeConfigID != "" && resolved.EdgeConfigToken != "":
		resolved.Type = domain.EdgeConfigStorageType
	default:
		resolved.Type = domain.MemoryStorageType
	}

	return f.CreateStorage(ctx, &resolved)
}

// ValidateStorageConfig valida uma configuração de storage
func ValidateStorageConfig(config *domain.StorageConfig) error {
	if config == nil {
		return fmt.Errorf("storage config cannot be nil")
	}

	switch config.Type {
	case domain.MemoryStorageType:
		// Memory storage não precisa de configurações específicas
	case domain.RedisStorageType:
		if config.ConnectionString == "" {
			return fmt.Errorf("redis storage requires a connection string")
		}
		if !strings.HasPrefix(config.ConnectionString, "redis://") &&
			!strings.HasPrefix(config.ConnectionString, "rediss://") {
			return fmt.Errorf("redis connection string must use redis:// or rediss:// scheme")
		}
	case domain.EdgeConfigStorageType:
		if config.EdgeConfigID == "" {
			return fmt.Errorf("edge config storage requires an id")
		}
		if config.EdgeConfigToken == "" {
			return fmt.Errorf("edge config storage requires a token")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", config.Type)
	}

	if config.TTLDefault <= 0 {
		return fmt.Errorf("ttl default must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be greater than 0")
	}
	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}

	return nil
}

// GetSupportedTypes retorna os tipos de storage suportados
func (f *StorageFactory) GetSupportedTypes() []domain.StorageType {
	return []domain.StorageType{
		domain.MemoryStorageType,
		domain.RedisStorageType,
		domain.EdgeConfigStorageType,
	}
}

// createRedisStorage cria e conecta uma instância de Redis storage
func (f *StorageFactory) createRedisStorage(ctx context.Context, config *domain.StorageConfig) (domain.KVStorage, error) {
	store, err := NewRedisStorage(config, f.logger)
	if err != nil {
		return nil, err
	}

	if err := store.Open(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	if f.logger != nil {
		f.logger.Info("Redis storage created successfully", nil)
	}
	return store, nil
}

// sanitizeConfig normaliza campos numéricos inválidos para os defaults
func (f *StorageFactory) sanitizeConfig(config *domain.StorageConfig) *domain.StorageConfig {
	if config == nil {
		return &domain.StorageConfig{
			Type:            domain.MemoryStorageType,
			TTLDefault:      defaultTTL,
			MaxRetries:      defaultRetries,
			Timeout:         defaultTimeout,
			FallbackEnabled: true,
		}
	}

	sanitized := *config
	if sanitized.TTLDefault <= 0 {
		sanitized.TTLDefault = defaultTTL
	}
	if sanitized.MaxRetries <= 0 {
		sanitized.MaxRetries = defaultRetries
	}
	if sanitized.Timeout <= 0 {
		sanitized.Timeout = defaultTimeout
	}
	if sanitized.Type == "" {
		sanitized.Type = domain.MemoryStorageType
	}
	return &sanitized
}

// degrade registra o motivo e devolve um Memory storage funcional
// Contrato de resiliência deliberado: o pipeline de logs nunca fica sem storage
func (f *StorageFactory) degrade(reason string, err error, config *domain.StorageConfig) domain.KVStorage {
	if f.logger != nil {
		fields := map[string]interface{}{
			"reason": reason,
		}
		if config != nil {
			fields["requested_type"] = string(config.Type)
		}
		f.logger.Warn("Degrading to memory storage: "+errString(err), fields)
	}
	return NewMemoryStorage(f.logger)
}

// errString devolve a mensagem do erro ou vazio
func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
