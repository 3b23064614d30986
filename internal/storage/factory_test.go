package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"log-governor/internal/domain"
)

// Helper para criar configuração de storage válida de teste
func createStorageConfig(storageType domain.StorageType) *domain.StorageConfig {
	return &domain.StorageConfig{
		Type:            storageType,
		TTLDefault:      time.Hour,
		MaxRetries:      3,
		Timeout:         2 * time.Second,
		FallbackEnabled: true,
	}
}

func TestValidateStorageConfig(t *testing.T) {
	tests := []struct {
		name      string
		config    *domain.StorageConfig
		expectErr bool
	}{
		{
			name:      "nil config rejected",
			config:    nil,
			expectErr: true,
		},
		{
			name:      "memory config accepted",
			config:    createStorageConfig(domain.MemoryStorageType),
			expectErr: false,
		},
		{
			name: "redis without connection string rejected",
			config: func() *domain.StorageConfig {
				c := createStorageConfig(domain.RedisStorageType)
				return c
			}(),
			expectErr: true,
		},
		{
			name: "redis with wrong scheme rejected",
			config: func() *domain.StorageConfig {
				c := createStorageConfig(domain.RedisStorageType)
				c.ConnectionString = "http://localhost:6379"
				return c
			}(),
			expectErr: true,
		},
		{
			name: "redis with valid scheme accepted",
			config: func() *domain.StorageConfig {
				c := createStorageConfig(domain.RedisStorageType)
				c.ConnectionString = "redis://localhost:6379"
				return c
			}(),
			expectErr: false,
		},
		{
			name: "rediss scheme accepted",
			config: func() *domain.StorageConfig {
				c := createStorageConfig(domain.RedisStorageType)
				c.ConnectionString = "rediss://localhost:6380"
				return c
			}(),
			expectErr: false,
		},
		{
			name: "edge config without token rejected",
			config: func() *domain.StorageConfig {
				c := createStorageConfig(domain.EdgeConfigStorageType)
				c.EdgeConfigID = "ecfg_123"
				return c
			}(),
			expectErr: true,
		},
		{
			name: "edge config with id and token accepted",
			config: func() *domain.StorageConfig {
				c := createStorageConfig(domain.EdgeConfigStorageType)
				c.EdgeConfigID = "ecfg_123"
				c.EdgeConfigToken = "token"
				return c
			}(),
			expectErr: false,
		},
		{
			name:      "unsupported type rejected",
			config:    createStorageConfig("cassandra"),
			expectErr: true,
		},
		{
			name: "zero ttl rejected",
			config: func() *domain.StorageConfig {
				c := createStorageConfig(domain.MemoryStorageType)
				c.TTLDefault = 0
				return c
			}(),
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStorageConfig(tt.config)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStorageFactory_CreateStorage_NeverReturnsNil(t *testing.T) {
	factory := NewStorageFactory(nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		config *domain.StorageConfig
	}{
		{"nil config", nil},
		{"empty config", &domain.StorageConfig{}},
		{"unsupported type", createStorageConfig("cassandra")},
		{
			"redis with bad scheme",
			func() *domain.StorageConfig {
				c := createStorageConfig(domain.RedisStorageType)
				c.ConnectionString = "tcp://localhost:6379"
				return c
			}(),
		},
		{
			"redis unreachable",
			func() *domain.StorageConfig {
				c := createStorageConfig(domain.RedisStorageType)
				c.ConnectionString = "redis://127.0.0.1:1"
				c.Timeout = 100 * time.Millisecond
				return c
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := factory.CreateStorage(ctx, tt.config)
			defer store.Close()

			// Contrato total: qualquer falha degrada para memória funcional
			assert.NotNil(t, store)
			assert.Equal(t, domain.MemoryStorageType, store.Type())
			assert.NoError(t, store.Health(ctx))
		})
	}
}

func TestStorageFactory_CreateStorage_MemoryType(t *testing.T) {
	factory := NewStorageFactory(nil)

	store := factory.CreateStorage(context.Background(), createStorageConfig(domain.MemoryStorageType))
	defer store.Close()

	assert.Equal(t, domain.MemoryStorageType, store.Type())
}

func TestStorageFactory_CreateStorageFromEnv_Precedence(t *testing.T) {
	factory := NewStorageFactory(nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		mutate   func(*domain.StorageConfig)
		expected domain.StorageType
	}{
		{
			name:     "nothing configured resolves to memory",
			mutate:   func(c *domain.StorageConfig) {},
			expected: domain.MemoryStorageType,
		},
		{
			name: "edge config id and token resolve to edge config",
			mutate: func(c *domain.StorageConfig) {
				c.EdgeConfigID = "ecfg_123"
				c.EdgeConfigToken = "token"
			},
			expected: domain.EdgeConfigStorageType,
		},
		{
			name: "edge config id without token falls back to memory",
			mutate: func(c *domain.StorageConfig) {
				c.EdgeConfigID = "ecfg_123"
			},
			expected: domain.MemoryStorageType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := createStorageConfig("")
			tt.mutate(config)

			store := factory.CreateStorageFromEnv(ctx, config)
			defer store.Close()

			assert.Equal(t, tt.expected, store.Type())
		})
	}
}

func TestStorageFactory_GetSupportedTypes(t *testing.T) {
	factory := NewStorageFactory(nil)

	types := factory.GetSupportedTypes()

	assert.Contains(t, types, domain.MemoryStorageType)
	assert.Contains(t, types, domain.RedisStorageType)
	assert.Contains(t, types, domain.EdgeConfigStorageType)
}
