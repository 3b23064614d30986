package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"log-governor/internal/configstore"
	"log-governor/internal/domain"
	"log-governor/internal/ratelimit"
	"log-governor/internal/storage"
)

// Handlers contém os handlers administrativos da API
type Handlers struct {
	store     domain.KVStorage
	configs   *configstore.Store
	limiter   *ratelimit.DistributedLimiter
	logger    domain.Logger
	startTime time.Time
}

// NewHandlers cria uma nova instância dos handlers
func NewHandlers(store domain.KVStorage, configs *configstore.Store, limiter *ratelimit.DistributedLimiter, logger domain.Logger) *Handlers {
	return &Handlers{
		store:     store,
		configs:   configs,
		limiter:   limiter,
		logger:    logger,
		startTime: time.Now(),
	}
}

// SetupRoutes configura as rotas da API
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.HealthHandler)

	admin := router.Group("/admin")
	{
		admin.GET("/config", h.GetConfigHandler)
		admin.PUT("/config", h.SaveConfigHandler)
		admin.POST("/config/merge", h.MergeConfigHandler)
		admin.POST("/config/cache/invalidate", h.InvalidateCacheHandler)
		admin.GET("/limiter", h.LimiterStatusHandler)
		admin.GET("/errors", h.ErrorFrequencyHandler)
		admin.POST("/limiter/reset", h.LimiterResetHandler)
	}
}

// HealthHandler executa o round trip sintético contra o storage
func (h *Handlers) HealthHandler(c *gin.Context) {
	report := storage.CheckStorageHealth(c.Request.Context(), h.store)

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":    statusLabel(report.Healthy),
		"service":   "Log Governor API",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.startTime).String(),
		"storage":   report,
	})
}

// GetConfigHandler devolve a configuração efetiva com a origem etiquetada
func (h *Handlers) GetConfigHandler(c *gin.Context) {
	result := h.configs.GetConfigWithFallback(c.Request.Context())
	c.JSON(http.StatusOK, result)
}

// SaveConfigHandler valida e persiste uma nova configuração remota
func (h *Handlers) SaveConfigHandler(c *gin.Context) {
	var payload domain.RemoteLogConfig
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_payload",
			"message": err.Error(),
		})
		return
	}

	// Atualizações parciais são completadas antes da validação
	sanitized := configstore.SanitizeConfig(&payload)

	previous, current, err := h.configs.SaveRemoteConfig(c.Request.Context(), sanitized)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("Failed to save remote config", err, nil)
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "config_rejected",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"previous_version": previous,
		"version":          current,
	})
}

// MergeConfigHandler aplica um override raso sobre a configuração corrente
func (h *Handlers) MergeConfigHandler(c *gin.Context) {
	var override domain.RemoteLogConfig
	if err := c.ShouldBindJSON(&override); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_payload",
			"message": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	base := h.configs.GetConfigWithFallback(ctx)
	merged := configstore.MergeConfigurations(base.Config, &override)

	previous, current, err := h.configs.SaveRemoteConfig(ctx, merged)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "config_rejected",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"previous_version": previous,
		"version":          current,
		"config":           merged,
	})
}

// InvalidateCacheHandler descarta as camadas de cache de configuração
func (h *Handlers) InvalidateCacheHandler(c *gin.Context) {
	if err := h.configs.InvalidateCache(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "cache_invalidation_failed",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cache invalidated"})
}

// LimiterStatusHandler devolve o snapshot de estado de um par cliente/endpoint
func (h *Handlers) LimiterStatusHandler(c *gin.Context) {
	clientID, endpoint, ok := h.limiterParams(c)
	if !ok {
		return
	}

	state, err := h.limiter.Status(c.Request.Context(), clientID, endpoint)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "status_unavailable",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"client":   clientID,
		"endpoint": endpoint,
		"state":    state,
	})
}

// ErrorFrequencyHandler devolve o relatório de frequência de erros
func (h *Handlers) ErrorFrequencyHandler(c *gin.Context) {
	clientID, endpoint, ok := h.limiterParams(c)
	if !ok {
		return
	}

	report, err := h.limiter.Analyze(c.Request.Context(), clientID, endpoint)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "analysis_unavailable",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"client":   clientID,
		"endpoint": endpoint,
		"report":   report,
	})
}

// LimiterResetHandler apaga o estado persistido de um par cliente/endpoint
func (h *Handlers) LimiterResetHandler(c *gin.Context) {
	clientID, endpoint, ok := h.limiterParams(c)
	if !ok {
		return
	}

	if err := h.limiter.Reset(c.Request.Context(), clientID, endpoint); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "reset_failed",
			"message": err.Error(),
		})
		return
	}

	if h.logger != nil {
		h.logger.Info("Limiter state reset via admin API", map[string]interface{}{
			"client":   clientID,
			"endpoint": endpoint,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "reset",
		"client":   clientID,
		"endpoint": endpoint,
	})
}

// limiterParams extrai e valida os parâmetros client/endpoint da query
func (h *Handlers) limiterParams(c *gin.Context) (string, string, bool) {
	clientID := c.Query("client")
	endpoint := c.Query("endpoint")
	if clientID == "" || endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_parameters",
			"message": "client and endpoint query parameters are required",
		})
		return "", "", false
	}
	return clientID, endpoint, true
}

// statusLabel traduz o booleano de saúde para o rótulo da resposta
func statusLabel(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}
