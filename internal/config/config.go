package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"log-governor/internal/domain"

	"github.com/joho/godotenv"
)

// Config representa todas as configurações da aplicação
type Config struct {
	// Server Configuration
	ServerPort string
	GinMode    string
	AppEnv     string

	// Logging Configuration
	LogLevel    string
	LogFormat   string
	ServiceName string

	// Rate Limiter Configuration
	MaxTokens         float64
	RefillRate        float64
	BurstCapacity     float64
	BackoffMultiplier float64
	MaxBackoff        float64 // em segundos
	ErrorThreshold    int
	AdaptiveSampling  bool

	// Storage Configuration
	RedisURL        string
	EdgeConfigID    string
	EdgeConfigToken string
	EdgeConfigURL   string
	TTLDefault      int // em segundos
	MaxRetries      int
	TimeoutMs       int
	FallbackEnabled bool

	// Remote Config Store
	ConfigKey         string
	ConfigCacheKey    string
	ConfigCacheTTL    int // em segundos
	ConfigCacheMaxAge int // em segundos

	// Context Propagation
	ContextMode string

	// Overrides File (sampling rates + limites por endpoint)
	OverridesFile string
}

// Overrides é a estrutura do arquivo de overrides JSON
type Overrides struct {
	SamplingRates  map[string]float64                 `json:"samplingRates"`
	EndpointLimits map[string]domain.EndpointOverride `json:"endpointLimits"`
}

// Loader carrega e mantém a configuração da aplicação
type Loader struct {
	config    *Config
	overrides *Overrides
}

// NewLoader cria uma nova instância do Loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadConfig carrega as configurações do .env e do ambiente
func (l *Loader) LoadConfig() (*Config, error) {
	// Carrega o arquivo .env se existir
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using system environment variables")
	}

	config, err := l.loadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}

	if err := l.validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	l.config = config

	if _, err := l.LoadOverrides(); err != nil {
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}

	return config, nil
}

// LoadOverrides carrega o arquivo de overrides JSON
// Arquivo ausente não é erro: os defaults do ambiente continuam valendo
func (l *Loader) LoadOverrides() (*Overrides, error) {
	file := l.overridesFile()

	if _, err := os.Stat(file); os.IsNotExist(err) {
		fmt.Printf("Warning: Overrides file %s not found, using only environment defaults\n", file)
		empty := &Overrides{
			SamplingRates:  make(map[string]float64),
			EndpointLimits: make(map[string]domain.EndpointOverride),
		}
		l.overrides = empty
		return empty, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides file: %w", err)
	}

	overrides, err := ParseOverrides(data)
	if err != nil {
		return nil, err
	}

	l.overrides = overrides
	return overrides, nil
}

// ParseOverrides decodifica e valida o conteúdo de um arquivo de overrides
func ParseOverrides(data []byte) (*Overrides, error) {
	var overrides Overrides
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse overrides file: %w", err)
	}

	for key, rate := range overrides.SamplingRates {
		if rate < 0 || rate > 1 {
			return nil, fmt.Errorf("invalid sampling rate for %s: must be between 0 and 1", key)
		}
	}
	for endpoint, limit := range overrides.EndpointLimits {
		if limit.MaxTokens <= 0 {
			return nil, fmt.Errorf("invalid max tokens for endpoint %s: must be greater than 0", endpoint)
		}
		if limit.RefillRate <= 0 {
			return nil, fmt.Errorf("invalid refill rate for endpoint %s: must be greater than 0", endpoint)
		}
	}

	if overrides.SamplingRates == nil {
		overrides.SamplingRates = make(map[string]float64)
	}
	if overrides.EndpointLimits == nil {
		overrides.EndpointLimits = make(map[string]domain.EndpointOverride)
	}

	return &overrides, nil
}

// Reload recarrega todas as configurações
func (l *Loader) Reload() error {
	_, err := l.LoadConfig()
	return err
}

// GetConfig retorna a configuração atual
func (l *Loader) GetConfig() *Config {
	return l.config
}

// GetOverrides retorna os overrides atuais
func (l *Loader) GetOverrides() *Overrides {
	return l.overrides
}

// RateLimiterConfig monta a configuração do limiter a partir do ambiente
// e dos overrides de sampling
func (l *Loader) RateLimiterConfig() domain.RateLimiterConfig {
	rates := make(map[string]float64)
	if l.overrides != nil {
		for k, v := range l.overrides.SamplingRates {
			rates[k] = v
		}
	}

	return domain.RateLimiterConfig{
		MaxTokens:         l.config.MaxTokens,
		RefillRate:        l.config.RefillRate,
		BurstCapacity:     l.config.BurstCapacity,
		BackoffMultiplier: l.config.BackoffMultiplier,
		MaxBackoff:        l.config.MaxBackoff,
		SamplingRates:     rates,
		AdaptiveSampling:  l.config.AdaptiveSampling,
		ErrorThreshold:    l.config.ErrorThreshold,
	}
}

// StorageConfig monta a configuração de storage a partir do ambiente
func (l *Loader) StorageConfig() domain.StorageConfig {
	return domain.StorageConfig{
		ConnectionString: l.config.RedisURL,
		EdgeConfigID:     l.config.EdgeConfigID,
		EdgeConfigToken:  l.config.EdgeConfigToken,
		EdgeConfigURL:    l.config.EdgeConfigURL,
		TTLDefault:       time.Duration(l.config.TTLDefault) * time.Second,
		MaxRetries:       l.config.MaxRetries,
		Timeout:          time.Duration(l.config.TimeoutMs) * time.Millisecond,
		FallbackEnabled:  l.config.FallbackEnabled,
	}
}

// IsProduction verifica se o ambiente é estrito
func (l *Loader) IsProduction() bool {
	return l.config != nil && l.config.AppEnv == "production"
}

// loadFromEnv carrega configurações das variáveis de ambiente
func (l *Loader) loadFromEnv() (*Config, error) {
	config := &Config{
		ServerPort:  getEnvWithDefault("SERVER_PORT", "8080"),
		GinMode:     getEnvWithDefault("GIN_MODE", "debug"),
		AppEnv:      getEnvWithDefault("APP_ENV", "development"),
		LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat:   getEnvWithDefault("LOG_FORMAT", "json"),
		ServiceName: getEnvWithDefault("SERVICE_NAME", "log-governor"),

		RedisURL:        getEnvWithDefault("REDIS_URL", ""),
		EdgeConfigID:    getEnvWithDefault("EDGE_CONFIG_ID", ""),
		EdgeConfigToken: getEnvWithDefault("EDGE_CONFIG_TOKEN", ""),
		EdgeConfigURL:   getEnvWithDefault("EDGE_CONFIG_URL", ""),

		ConfigKey:      getEnvWithDefault("CONFIG_KEY", "logger_remote_config"),
		ConfigCacheKey: getEnvWithDefault("CONFIG_CACHE_KEY", "logger_config_cache"),

		ContextMode:   getEnvWithDefault("CONTEXT_MODE", "auto"),
		OverridesFile: getEnvWithDefault("OVERRIDES_FILE", "configs/overrides.json"),
	}

	var err error
	if config.MaxTokens, err = parseFloat("MAX_TOKENS", "100"); err != nil {
		return nil, err
	}
	if config.RefillRate, err = parseFloat("REFILL_RATE", "10"); err != nil {
		return nil, err
	}
	if config.BurstCapacity, err = parseFloat("BURST_CAPACITY", "150"); err != nil {
		return nil, err
	}
	if config.BackoffMultiplier, err = parseFloat("BACKOFF_MULTIPLIER", "2"); err != nil {
		return nil, err
	}
	if config.MaxBackoff, err = parseFloat("MAX_BACKOFF", "60"); err != nil {
		return nil, err
	}
	if config.ErrorThreshold, err = parseInt("ERROR_THRESHOLD", "50"); err != nil {
		return nil, err
	}
	if config.AdaptiveSampling, err = parseBool("ADAPTIVE_SAMPLING", "true"); err != nil {
		return nil, err
	}

	if config.TTLDefault, err = parseInt("STORAGE_TTL_DEFAULT", "3600"); err != nil {
		return nil, err
	}
	if config.MaxRetries, err = parseInt("STORAGE_MAX_RETRIES", "3"); err != nil {
		return nil, err
	}
	if config.TimeoutMs, err = parseInt("STORAGE_TIMEOUT_MS", "2000"); err != nil {
		return nil, err
	}
	if config.FallbackEnabled, err = parseBool("STORAGE_FALLBACK_ENABLED", "true"); err != nil {
		return nil, err
	}

	if config.ConfigCacheTTL, err = parseInt("CONFIG_CACHE_TTL", "300"); err != nil {
		return nil, err
	}
	if config.ConfigCacheMaxAge, err = parseInt("CONFIG_CACHE_MAX_AGE", "3600"); err != nil {
		return nil, err
	}

	return config, nil
}

// validateConfig valida se as configurações são válidas
// Em ambiente estrito a validação falha no startup, não no primeiro uso
func (l *Loader) validateConfig(config *Config) error {
	if config.MaxTokens <= 0 {
		return fmt.Errorf("MAX_TOKENS must be greater than 0")
	}
	if config.RefillRate <= 0 {
		return fmt.Errorf("REFILL_RATE must be greater than 0")
	}
	if config.BurstCapacity < config.MaxTokens {
		return fmt.Errorf("BURST_CAPACITY must be at least MAX_TOKENS")
	}
	if config.BackoffMultiplier <= 1 {
		return fmt.Errorf("BACKOFF_MULTIPLIER must be greater than 1")
	}
	if config.MaxBackoff <= 0 {
		return fmt.Errorf("MAX_BACKOFF must be greater than 0")
	}
	if config.TTLDefault <= 0 {
		return fmt.Errorf("STORAGE_TTL_DEFAULT must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		return fmt.Errorf("STORAGE_MAX_RETRIES must be greater than 0")
	}
	if config.TimeoutMs <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT_MS must be greater than 0")
	}
	if config.ConfigCacheTTL <= 0 {
		return fmt.Errorf("CONFIG_CACHE_TTL must be greater than 0")
	}
	if config.ConfigCacheMaxAge <= 0 {
		return fmt.Errorf("CONFIG_CACHE_MAX_AGE must be greater than 0")
	}

	// Ambiente de produção exige um backend remoto, a menos que o fallback
	// para memória esteja explicitamente habilitado
	if config.AppEnv == "production" && !config.FallbackEnabled {
		hasRemote := config.RedisURL != "" || (config.EdgeConfigID != "" && config.EdgeConfigToken != "")
		if !hasRemote {
			return fmt.Errorf("production requires REDIS_URL or EDGE_CONFIG_ID/EDGE_CONFIG_TOKEN when STORAGE_FALLBACK_ENABLED is false")
		}
	}
	if config.EdgeConfigID != "" && config.EdgeConfigToken == "" {
		return fmt.Errorf("EDGE_CONFIG_TOKEN is required when EDGE_CONFIG_ID is set")
	}

	return nil
}

// overridesFile retorna o caminho do arquivo de overrides
func (l *Loader) overridesFile() string {
	if l.config != nil && l.config.OverridesFile != "" {
		return l.config.OverridesFile
	}
	return getEnvWithDefault("OVERRIDES_FILE", "configs/overrides.json")
}

// getEnvWithDefault retorna o valor da variável de ambiente ou um valor padrão
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseFloat lê uma variável de ambiente numérica
func parseFloat(key, defaultValue string) (float64, error) {
	value, err := strconv.ParseFloat(getEnvWithDefault(key, defaultValue), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return value, nil
}

// parseInt lê uma variável de ambiente inteira
func parseInt(key, defaultValue string) (int, error) {
	value, err := strconv.Atoi(getEnvWithDefault(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return value, nil
}

// parseBool lê uma variável de ambiente booleana
func parseBool(key, defaultValue string) (bool, error) {
	value, err := strconv.ParseBool(getEnvWithDefault(key, defaultValue))
	if err != nil {
		return false, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return value, nil
}
