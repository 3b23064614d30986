package storage

import (
	"context"
	"sync"
	"time"

	"log-governor/internal/domain"
)

// sweepInterval define o período da varredura de entradas expiradas
const sweepInterval = 5 * time.Minute

// memoryEntry guarda o valor e o instante absoluto de expiração
type memoryEntry struct {
	value     string
	expiresAt time.Time // zero = sem expiração
}

// MemoryStorage implementa domain.KVStorage em memória
// Sem garantias de durabilidade; serve como fallback universal
type MemoryStorage struct {
	data   map[string]memoryEntry
	mutex  sync.RWMutex
	logger domain.Logger
	stopCh chan struct{}
	once   sync.Once
}

// NewMemoryStorage cria uma nova instância do MemoryStorage
func NewMemoryStorage(logger domain.Logger) *MemoryStorage {
	s := &MemoryStorage{
		data:   make(map[string]memoryEntry),
		logger: logger,
		stopCh: make(chan struct{}),
	}

	// Varredura periódica independente do fluxo de requisições
	go s.sweep()

	if logger != nil {
		logger.Info("Memory storage initialized", nil)
	}

	return s
}

// Get recupera o valor de uma chave, com expiração preguiçosa na leitura
func (m *MemoryStorage) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()

	m.mutex.RLock()
	entry, exists := m.data[key]
	m.mutex.RUnlock()

	if !exists {
		m.logOperation("GET", key, start, nil)
		return "", false, nil
	}

	if m.expired(entry, time.Now()) {
		m.mutex.Lock()
		// Reverifica sob o lock de escrita
		if cur, ok := m.data[key]; ok && m.expired(cur, time.Now()) {
			delete(m.data, key)
		}
		m.mutex.Unlock()
		m.logOperation("GET", key, start, nil)
		return "", false, nil
	}

	m.logOperation("GET", key, start, nil)
	return entry.value, true, nil
}

// Set grava um valor com TTL opcional
func (m *MemoryStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	start := time.Now()

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	m.mutex.Lock()
	m.data[key] = entry
	m.mutex.Unlock()

	m.logOperation("SET", key, start, nil)
	return nil
}

// Delete remove uma chave
func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	start := time.Now()

	m.mutex.Lock()
	delete(m.data, key)
	m.mutex.Unlock()

	m.logOperation("DELETE", key, start, nil)
	return nil
}

// Exists verifica se uma chave está presente e não expirada
func (m *MemoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

// Type identifica o backend
func (m *MemoryStorage) Type() domain.StorageType {
	return domain.MemoryStorageType
}

// Health verifica se o storage está saudável
func (m *MemoryStorage) Health(ctx context.Context) error {
	m.mutex.RLock()
	entries := len(m.data)
	m.mutex.RUnlock()

	if m.logger != nil {
		m.logger.Debug("Memory storage health check", map[string]interface{}{
			"entries": entries,
		})
	}
	return nil
}

// Close interrompe a varredura e descarta os dados
func (m *MemoryStorage) Close() error {
	m.once.Do(func() { close(m.stopCh) })

	m.mutex.Lock()
	m.data = make(map[string]memoryEntry)
	m.mutex.Unlock()

	if m.logger != nil {
		m.logger.Info("Memory storage closed", nil)
	}
	return nil
}

// expired verifica se uma entrada passou do seu instante de expiração
func (m *MemoryStorage) expired(entry memoryEntry, now time.Time) bool {
	return !entry.expiresAt.IsZero() && now.After(entry.expiresAt)
}

// sweep remove entradas expiradas periodicamente
func (m *MemoryStorage) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.removeExpired()
		case <-m.stopCh:
			return
		}
	}
}

// removeExpired varre o mapa removendo entradas expiradas
func (m *MemoryStorage) removeExpired() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range m.data {
		if m.expired(entry, now) {
			delete(m.data, key)
			removed++
		}
	}

	if removed > 0 && m.logger != nil {
		m.logger.Debug("Memory storage sweep completed", map[string]interface{}{
			"removed": removed,
		})
	}
}

// logOperation registra operações de storage
func (m *MemoryStorage) logOperation(operation, key string, start time.Time, err error) {
	if m.logger == nil {
		return
	}

	latency := time.Since(start).Seconds() * 1000
	if err != nil {
		m.logger.Error("Storage operation failed", err, map[string]interface{}{
			"backend":   "memory",
			"operation": operation,
			"key":       key,
			"latency":   latency,
		})
		return
	}
	m.logger.Debug("Storage operation completed", map[string]interface{}{
		"backend":   "memory",
		"operation": operation,
		"key":       key,
		"latency":   latency,
	})
}
