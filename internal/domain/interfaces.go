package domain

import (
	"context"
	"time"
)

// KVStorage define o contrato uniforme de armazenamento chave-valor
// Implementa o Strategy Pattern sobre os backends Memory / Redis / Edge Config
type KVStorage interface {
	// Get recupera o valor de uma chave; ok=false quando ausente
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set grava um valor com TTL opcional (ttl <= 0 não expira)
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete remove uma chave
	Delete(ctx context.Context, key string) error

	// Exists verifica se uma chave está presente
	Exists(ctx context.Context, key string) (bool, error)

	// Type identifica o backend
	Type() StorageType

	// Health verifica se o backend está saudável
	Health(ctx context.Context) error

	// Close libera recursos do backend
	Close() error
}

// Logger define a interface para logging estruturado
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
	WithContext(ctx context.Context) Logger
	WithFields(fields map[string]interface{}) Logger
}

// ContextStorage define a estratégia de armazenamento do contexto corrente
// Dois backends intercambiáveis: propagação nativa via context.Context e um
// slot mutável para runtimes que não conseguem propagar contexto
type ContextStorage interface {
	// Run torna lc o contexto corrente durante a execução de fn
	Run(ctx context.Context, lc *LoggerContext, fn func(ctx context.Context))

	// Get retorna o contexto corrente, se houver
	Get(ctx context.Context) (*LoggerContext, bool)

	// Bind fecha sobre lc e reentra nele quando a função retornada executa
	Bind(lc *LoggerContext, fn func(ctx context.Context)) func(ctx context.Context)

	// Name identifica o backend selecionado
	Name() string
}

// ConfigFetcher define a interface de leitura de configuração remota
type ConfigFetcher interface {
	FetchRemoteConfig(ctx context.Context, useCache bool) FetchResult
	GetConfigWithFallback(ctx context.Context) FetchResult
}
