package ratelimit

import (
	"sort"
	"time"

	"log-governor/internal/domain"
)

// topErrorsLimit define quantos tipos de erro o relatório destaca
const topErrorsLimit = 5

// UpdateErrorCounts registra a ocorrência de um erro no snapshot de estado
// Anexa o timestamp, incrementa o contador por tipo e remove registros com
// mais de uma hora. Retorna um novo snapshot
func UpdateErrorCounts(state domain.RateLimiterState, errorType string, now time.Time) domain.RateLimiterState {
	next := cloneState(state)

	if errorType == "" {
		errorType = "unknown"
	}
	next.ErrorCounts[errorType]++
	next.ErrorTimestamps = append(next.ErrorTimestamps, now)

	// Poda registros fora da janela de retenção
	cutoff := now.Add(-errorWindow)
	pruned := next.ErrorTimestamps[:0]
	for _, ts := range next.ErrorTimestamps {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}
	next.ErrorTimestamps = pruned

	return next
}

// AnalyzeErrorFrequency resume a frequência de erros do snapshot
// Usado pelo sampling adaptativo e por dashboards de observabilidade
func AnalyzeErrorFrequency(state domain.RateLimiterState, now time.Time) domain.ErrorFrequencyReport {
	report := domain.ErrorFrequencyReport{
		TotalErrors:     len(state.ErrorTimestamps),
		ErrorsPerMinute: errorsPerMinute(state.ErrorTimestamps, now),
		RecommendedRate: 1.0,
		Counts:          make(map[string]int, len(state.ErrorCounts)),
	}

	for errType, count := range state.ErrorCounts {
		report.Counts[errType] = count
		report.TopErrors = append(report.TopErrors, domain.ErrorCount{
			Type:  errType,
			Count: count,
		})
	}

	sort.Slice(report.TopErrors, func(i, j int) bool {
		if report.TopErrors[i].Count != report.TopErrors[j].Count {
			return report.TopErrors[i].Count > report.TopErrors[j].Count
		}
		return report.TopErrors[i].Type < report.TopErrors[j].Type
	})
	if len(report.TopErrors) > topErrorsLimit {
		report.TopErrors = report.TopErrors[:topErrorsLimit]
	}

	if rate, ok := recommendedRate(report.ErrorsPerMinute); ok {
		report.RecommendedRate = rate
	}

	return report
}
