package governor

import (
	"context"
	"sync"
	"time"

	"log-governor/internal/config"
	"log-governor/internal/configstore"
	"log-governor/internal/domain"
	"log-governor/internal/propagation"
	"log-governor/internal/ratelimit"
	"log-governor/internal/storage"
)

// Governor agrega os quatro subsistemas de governança de emissão de logs
// É o único lugar com instância padrão; todo o resto recebe dependências
// explícitas por construção
type Governor struct {
	Loader     *config.Loader
	Logger     domain.Logger
	Storage    domain.KVStorage
	Configs    *configstore.Store
	Limiter    *ratelimit.DistributedLimiter
	Propagator *propagation.Propagator
	Timers     *propagation.TimerContextManager
}

// New monta um Governor a partir da configuração carregada
func New(ctx context.Context, loader *config.Loader, logger domain.Logger) *Governor {
	cfg := loader.GetConfig()

	factory := storage.NewStorageFactory(logger)
	storageCfg := loader.StorageConfig()
	kv := factory.CreateStorageFromEnv(ctx, &storageCfg)

	configs := configstore.NewStore(kv, logger,
		configstore.WithKeys(cfg.ConfigKey, cfg.ConfigCacheKey),
		configstore.WithCacheTTL(
			time.Duration(cfg.ConfigCacheTTL)*time.Second,
			time.Duration(cfg.ConfigCacheMaxAge)*time.Second,
		),
	)

	limiter := ratelimit.NewDistributedLimiter(loader.RateLimiterConfig(), kv, logger)
	if overrides := loader.GetOverrides(); overrides != nil {
		limiter.SetOverrides(overrides.EndpointLimits)
	}

	propagator := propagation.NewPropagator(propagation.Mode(cfg.ContextMode), logger)
	timers := propagation.NewTimerContextManager(propagator.Storage(), logger)

	return &Governor{
		Loader:     loader,
		Logger:     logger,
		Storage:    kv,
		Configs:    configs,
		Limiter:    limiter,
		Propagator: propagator,
		Timers:     timers,
	}
}

// Close encerra os recursos do Governor de forma determinística
func (g *Governor) Close() {
	if g.Timers != nil {
		g.Timers.ClearAllTimers()
	}
	if g.Storage != nil {
		_ = g.Storage.Close()
	}
}

var (
	defaultMu  sync.RWMutex
	defaultGov *Governor
)

// SetDefault registra a instância padrão do processo
func SetDefault(g *Governor) {
	defaultMu.Lock()
	defaultGov = g
	defaultMu.Unlock()
}

// Default devolve a instância padrão registrada, se houver
func Default() *Governor {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultGov
}

// ResetDefault descarta a instância padrão
// Conveniência para ergonomia de testes
func ResetDefault() {
	defaultMu.Lock()
	if defaultGov != nil {
		defaultGov.Close()
	}
	defaultGov = nil
	defaultMu.Unlock()
}
