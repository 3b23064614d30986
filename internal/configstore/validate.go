package configstore

import (
	"fmt"
	"time"

	"log-governor/internal/domain"
)

// ValidateRemoteConfig valida campo a campo uma configuração remota
// Sempre devolve a lista completa de problemas; a configuração é rejeitada
// por inteiro quando a lista não é vazia, nunca aceita parcialmente
func ValidateRemoteConfig(config *domain.RemoteLogConfig) []string {
	if config == nil {
		return []string{"config cannot be nil"}
	}

	var issues []string

	if !domain.IsValidLevel(config.GlobalLevel) {
		issues = append(issues, fmt.Sprintf("globalLevel %q is not a valid log level", config.GlobalLevel))
	}

	for service, level := range config.ServiceLevels {
		if !domain.IsValidLevel(level) {
			issues = append(issues, fmt.Sprintf("serviceLevels[%s] %q is not a valid log level", service, level))
		}
	}

	for name, limit := range config.RateLimits {
		if limit < 0 {
			issues = append(issues, fmt.Sprintf("rateLimits[%s] must be a non-negative integer, got %d", name, limit))
		}
	}

	if config.LastUpdated == "" {
		issues = append(issues, "lastUpdated is required")
	} else if _, err := time.Parse(time.RFC3339, config.LastUpdated); err != nil {
		issues = append(issues, fmt.Sprintf("lastUpdated %q is not a valid timestamp", config.LastUpdated))
	}

	if config.Version < 1 {
		issues = append(issues, fmt.Sprintf("version must be a positive integer, got %d", config.Version))
	}

	return issues
}
