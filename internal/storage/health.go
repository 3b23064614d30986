package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"log-governor/internal/domain"
)

// HealthReport descreve o resultado de uma verificação sintética de storage
type HealthReport struct {
	Healthy bool               `json:"healthy"`
	Backend domain.StorageType `json:"backend"`
	Latency float64            `json:"latencyMs"`
	Error   string             `json:"error,omitempty"`
}

// CheckStorageHealth executa um round trip sintético contra o storage:
// grava um valor conhecido com TTL curto, lê e compara, confere existência,
// apaga e confere ausência. Usado como liveness probe
func CheckStorageHealth(ctx context.Context, store domain.KVStorage) HealthReport {
	start := time.Now()
	report := HealthReport{Backend: store.Type()}

	key := "health_check:" + uuid.New().String()
	const value = "ok"

	fail := func(err error) HealthReport {
		report.Healthy = false
		report.Latency = time.Since(start).Seconds() * 1000
		report.Error = err.Error()
		return report
	}

	if err := store.Set(ctx, key, value, 30*time.Second); err != nil {
		return fail(fmt.Errorf("health write failed: %w", err))
	}

	got, ok, err := store.Get(ctx, key)
	if err != nil {
		return fail(fmt.Errorf("health read failed: %w", err))
	}
	if !ok || got != value {
		return fail(fmt.Errorf("health read mismatch: got %q", got))
	}

	exists, err := store.Exists(ctx, key)
	if err != nil || !exists {
		return fail(fmt.Errorf("health exists check failed"))
	}

	if err := store.Delete(ctx, key); err != nil {
		return fail(fmt.Errorf("health delete failed: %w", err))
	}

	exists, err = store.Exists(ctx, key)
	if err != nil {
		return fail(fmt.Errorf("health post-delete check failed: %w", err))
	}
	if exists {
		return fail(fmt.Errorf("health key still present after delete"))
	}

	report.Healthy = true
	report.Latency = time.Since(start).Seconds() * 1000
	return report
}
