package storage

import (
	"context"
	"fmt"
	"time"

	"log-governor/internal/domain"

	"github.com/go-redis/redis/v8"
)

// RedisStorage implementa domain.KVStorage sobre Redis
// Leituras degradam para ausência em caso de falha; escritas propagam o erro
// depois de registradas, conforme a política do pipeline de logs
type RedisStorage struct {
	client  redis.Cmdable
	closer  func() error
	timeout time.Duration
	logger  domain.Logger
}

// NewRedisStorage cria uma instância ainda não conectada do RedisStorage
func NewRedisStorage(cfg *domain.StorageConfig, logger domain.Logger) (*RedisStorage, error) {
	opts, err := redis.ParseURL(cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid redis connection string: %w", err)
	}

	opts.MaxRetries = cfg.MaxRetries
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = cfg.Timeout
	opts.WriteTimeout = cfg.Timeout
	opts.PoolSize = 20
	opts.MinIdleConns = 5

	rdb := redis.NewClient(opts)

	return &RedisStorage{
		client:  rdb,
		closer:  rdb.Close,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// Open valida a conexão com o servidor
func (r *RedisStorage) Open(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if r.logger != nil {
		r.logger.Info("Redis connection established", nil)
	}
	return nil
}

// Get recupera o valor de uma chave
// Falhas de leitura degradam para ausência com warning, nunca propagam
func (r *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	result, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			r.logOperation("GET", key, start, nil)
			return "", false, nil
		}
		r.logOperation("GET", key, start, err)
		if r.logger != nil {
			r.logger.Warn("Redis read degraded to miss", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return "", false, nil
	}

	r.logOperation("GET", key, start, nil)
	return result, true, nil
}

// Set grava um valor com TTL opcional
func (r *RedisStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	start := time.Now()
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logOperation("SET", key, start, err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	r.logOperation("SET", key, start, nil)
	return nil
}

// Delete remove uma chave
func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	start := time.Now()
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logOperation("DELETE", key, start, err)
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}

	r.logOperation("DELETE", key, start, nil)
	return nil
}

// Exists verifica se uma chave está presente
// Segue a mesma política de degradação das leituras
func (r *RedisStorage) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		r.logOperation("EXISTS", key, start, err)
		if r.logger != nil {
			r.logger.Warn("Redis exists degraded to false", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return false, nil
	}

	r.logOperation("EXISTS", key, start, nil)
	return n > 0, nil
}

// Type identifica o backend
func (r *RedisStorage) Type() domain.StorageType {
	return domain.RedisStorageType
}

// Health verifica se o storage está saudável
func (r *RedisStorage) Health(ctx context.Context) error {
	start := time.Now()
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		r.logOperation("HEALTH", "ping", start, err)
		return fmt.Errorf("Redis health check failed: %w", err)
	}

	r.logOperation("HEALTH", "ping", start, nil)
	return nil
}

// Close fecha a conexão com o storage
func (r *RedisStorage) Close() error {
	if r.closer == nil {
		return nil
	}
	if err := r.closer(); err != nil {
		if r.logger != nil {
			r.logger.Error("Failed to close Redis connection", err, nil)
		}
		return err
	}
	if r.logger != nil {
		r.logger.Info("Redis connection closed", nil)
	}
	return nil
}

// opContext limita cada operação ao timeout configurado
// O cancelamento aborta a espera do chamador; a escrita em trânsito pode ainda
// ser aplicada no servidor, então Set não garante at-most-once sob timeout
func (r *RedisStorage) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// logOperation registra operações de storage
func (r *RedisStorage) logOperation(operation, key string, start time.Time, err error) {
	if r.logger == nil {
		return
	}

	latency := time.Since(start).Seconds() * 1000
	if err != nil {
		r.logger.Error("Storage operation failed", err, map[string]interface{}{
			"backend":   "redis",
			"operation": operation,
			"key":       key,
			"latency":   latency,
		})
		return
	}
	r.logger.Debug("Storage operation completed", map[string]interface{}{
		"backend":   "redis",
		"operation": operation,
		"key":       key,
		"latency":   latency,
	})
}
