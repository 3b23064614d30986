package domain

import "context"

// loggerContextKey é a chave privada usada para carregar o LoggerContext
type loggerContextKey struct{}

// ContextWithLoggerContext anexa um LoggerContext ao context.Context
func ContextWithLoggerContext(ctx context.Context, lc *LoggerContext) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, lc)
}

// LoggerContextFrom extrai o LoggerContext do context.Context, se presente
func LoggerContextFrom(ctx context.Context) (*LoggerContext, bool) {
	if ctx == nil {
		return nil, false
	}
	lc, ok := ctx.Value(loggerContextKey{}).(*LoggerContext)
	if !ok || lc == nil {
		return nil, false
	}
	return lc, true
}
