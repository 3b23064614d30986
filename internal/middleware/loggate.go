package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"log-governor/internal/configstore"
	"log-governor/internal/domain"
	"log-governor/internal/propagation"
	"log-governor/internal/ratelimit"
)

// LogGateMiddleware governa a emissão do access log de cada requisição:
// deriva o LoggerContext, torna-o ambiente via propagação, resolve o nível
// efetivo no config store e consulta o rate limiter antes de emitir
type LogGateMiddleware struct {
	limiter    *ratelimit.DistributedLimiter
	configs    *configstore.Store
	propagator *propagation.Propagator
	logger     domain.Logger
	service    string
}

// NewLogGateMiddleware cria uma nova instância do middleware
func NewLogGateMiddleware(
	limiter *ratelimit.DistributedLimiter,
	configs *configstore.Store,
	propagator *propagation.Propagator,
	logger domain.Logger,
	service string,
) gin.HandlerFunc {
	m := &LogGateMiddleware{
		limiter:    limiter,
		configs:    configs,
		propagator: propagator,
		logger:     logger,
		service:    service,
	}
	return m.Handle
}

// Handle é o handler principal do middleware
func (m *LogGateMiddleware) Handle(c *gin.Context) {
	start := time.Now()

	requestID := m.getRequestID(c)
	lc := m.buildLoggerContext(c, requestID)

	// O LoggerContext fica ambiente durante toda a unidade de trabalho
	m.propagator.RunWithContext(c.Request.Context(), lc, func(ctx context.Context) {
		c.Request = c.Request.WithContext(ctx)
		c.Next()

		m.emitAccessLog(ctx, c, lc, start)
	})
}

// emitAccessLog decide e emite (ou suprime) o access log da requisição
func (m *LogGateMiddleware) emitAccessLog(ctx context.Context, c *gin.Context, lc *domain.LoggerContext, start time.Time) {
	status := c.Writer.Status()
	level, errorType := classifyStatus(status)

	// Nível efetivo vem da configuração remota com fallback garantido
	result := m.configs.GetConfigWithFallback(ctx)
	effective := configstore.GetEffectiveLogLevel(result.Config, m.service)
	if !domain.LevelEnabled(level, effective) {
		return
	}

	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = c.Request.URL.Path
	}

	if errorType != "" {
		m.limiter.RecordError(ctx, m.service, endpoint, errorType)
	}

	decision := m.limiter.Check(ctx, m.service, endpoint, level, errorType)
	if !decision.Allowed {
		return
	}

	fields := map[string]interface{}{
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"status":     status,
		"latency_ms": time.Since(start).Seconds() * 1000,
		"source":     result.Source,
	}

	log := m.logger.WithContext(ctx)
	switch level {
	case domain.ErrorLevel:
		log.Error("Request completed", nil, fields)
	case domain.WarnLevel:
		log.Warn("Request completed", fields)
	default:
		log.Info("Request completed", fields)
	}
}

// buildLoggerContext deriva o contexto de correlação da requisição
// Campos de identidade chegam pseudonimizados nos headers
func (m *LogGateMiddleware) buildLoggerContext(c *gin.Context, requestID string) *domain.LoggerContext {
	lc := &domain.LoggerContext{
		RequestID: requestID,
		UserID:    c.GetHeader("X-User-ID"),
		SessionID: c.GetHeader("X-Session-ID"),
	}

	// Trace ids podem chegar depois (enriquecimento in-place)
	propagation.SetTraceInfo(lc, c.GetHeader("X-Trace-ID"), c.GetHeader("X-Span-ID"))

	return lc
}

// getRequestID obtém ou gera um Request ID para tracking
func (m *LogGateMiddleware) getRequestID(c *gin.Context) string {
	if requestID := c.GetHeader("X-Request-ID"); requestID != "" {
		c.Header("X-Request-ID", requestID)
		return requestID
	}

	requestID := uuid.New().String()
	c.Header("X-Request-ID", requestID)
	return requestID
}

// classifyStatus traduz o status HTTP em nível de log e tipo de erro
func classifyStatus(status int) (domain.LogLevel, string) {
	switch {
	case status >= 500:
		return domain.ErrorLevel, "server_error"
	case status >= 400:
		return domain.WarnLevel, "client_error"
	default:
		return domain.InfoLevel, ""
	}
}
