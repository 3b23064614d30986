package logger

import (
	"context"
	"os"
	"strings"

	"log-governor/internal/domain"

	"github.com/sirupsen/logrus"
)

// StructuredLogger implementa a interface domain.Logger sobre logrus
type StructuredLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// NewLogger cria uma nova instância do logger estruturado
func NewLogger(level, format string) domain.Logger {
	logger := logrus.New()

	// Configura o nível de log
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Configura o formato de saída
	switch strings.ToLower(format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &StructuredLogger{
		logger: logger,
		fields: make(logrus.Fields),
	}
}

// Debug registra uma mensagem de debug
func (l *StructuredLogger) Debug(msg string, fields map[string]interface{}) {
	l.logWithFields(logrus.DebugLevel, msg, fields)
}

// Info registra uma mensagem informativa
func (l *StructuredLogger) Info(msg string, fields map[string]interface{}) {
	l.logWithFields(logrus.InfoLevel, msg, fields)
}

// Warn registra uma mensagem de warning
func (l *StructuredLogger) Warn(msg string, fields map[string]interface{}) {
	l.logWithFields(logrus.WarnLevel, msg, fields)
}

// Error registra uma mensagem de erro
func (l *StructuredLogger) Error(msg string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.logWithFields(logrus.ErrorLevel, msg, fields)
}

// WithContext cria um novo logger com os campos de correlação do contexto
func (l *StructuredLogger) WithContext(ctx context.Context) domain.Logger {
	contextFields := extractContextFields(ctx)

	// Mescla campos do contexto com campos existentes
	mergedFields := make(logrus.Fields)
	for k, v := range l.fields {
		mergedFields[k] = v
	}
	for k, v := range contextFields {
		mergedFields[k] = v
	}

	return &StructuredLogger{
		logger: l.logger,
		fields: mergedFields,
	}
}

// WithFields cria um novo logger com campos adicionais
func (l *StructuredLogger) WithFields(fields map[string]interface{}) domain.Logger {
	newFields := make(logrus.Fields)

	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &StructuredLogger{
		logger: l.logger,
		fields: newFields,
	}
}

// logWithFields registra uma mensagem com campos específicos
func (l *StructuredLogger) logWithFields(level logrus.Level, msg string, fields map[string]interface{}) {
	allFields := make(logrus.Fields)

	for k, v := range l.fields {
		allFields[k] = v
	}
	if fields != nil {
		for k, v := range fields {
			allFields[k] = v
		}
	}

	allFields["component"] = "log_governor"
	if version := os.Getenv("APP_VERSION"); version != "" {
		allFields["version"] = version
	}

	l.logger.WithFields(allFields).Log(level, msg)
}

// extractContextFields extrai os campos de correlação do LoggerContext
func extractContextFields(ctx context.Context) logrus.Fields {
	fields := make(logrus.Fields)

	lc, ok := domain.LoggerContextFrom(ctx)
	if !ok {
		return fields
	}

	fields["request_id"] = lc.RequestID
	if lc.TraceID != "" {
		fields["trace_id"] = lc.TraceID
	}
	if lc.SpanID != "" {
		fields["span_id"] = lc.SpanID
	}
	if lc.UserID != "" {
		fields["user_id"] = lc.UserID
	}
	if lc.SessionID != "" {
		fields["session_id"] = lc.SessionID
	}
	if lc.EventName != "" {
		fields["event_name"] = lc.EventName
	}
	if lc.EventCategory != "" {
		fields["event_category"] = lc.EventCategory
	}

	return fields
}

// LogEmissionEvent registra o resultado de uma decisão de emissão
func LogEmissionEvent(l domain.Logger, level domain.LogLevel, decision *domain.RateLimitDecision, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}

	fields["log_level"] = string(level)
	fields["allowed"] = decision.Allowed
	if decision.Reason != domain.ReasonNone {
		fields["reason"] = string(decision.Reason)
	}
	if decision.RetryAfter > 0 {
		fields["retry_after"] = decision.RetryAfter
	}

	if decision.Allowed {
		l.Debug("Log emission allowed", fields)
	} else {
		l.Debug("Log emission suppressed", fields)
	}
}
