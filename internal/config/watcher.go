package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"log-governor/internal/domain"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig define o comportamento do watcher de overrides
type WatcherConfig struct {
	// Debounce evita recargas múltiplas em sequência rápida
	DebounceDuration time.Duration
	// OnChange é chamado quando o arquivo recarrega com sucesso
	OnChange func(overrides *Overrides) error
	// OnError é chamado quando a recarga falha
	OnError func(error)
}

// DefaultWatcherConfig retorna a configuração padrão do watcher
func DefaultWatcherConfig() *WatcherConfig {
	return &WatcherConfig{
		DebounceDuration: 500 * time.Millisecond,
	}
}

// Watcher monitora o arquivo de overrides e recarrega sob demanda
// Overrides inválidos são rejeitados e a versão anterior continua valendo
type Watcher struct {
	path      string
	config    *WatcherConfig
	watcher   *fsnotify.Watcher
	logger    domain.Logger
	mu        sync.Mutex
	stopCh    chan struct{}
	wg        sync.WaitGroup
	debouncer *time.Timer
}

// NewWatcher cria um novo watcher para o arquivo de overrides
func NewWatcher(path string, config *WatcherConfig, logger domain.Logger) (*Watcher, error) {
	if config == nil {
		config = DefaultWatcherConfig()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		path:    absPath,
		config:  config,
		watcher: fsWatcher,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}

	if err := fsWatcher.Add(absPath); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch overrides file: %w", err)
	}

	// Observa também o diretório, por causa de escritas atômicas de editores
	dir := filepath.Dir(absPath)
	if err := fsWatcher.Add(dir); err != nil && logger != nil {
		logger.Warn("Failed to watch overrides directory", map[string]interface{}{
			"dir":   dir,
			"error": err.Error(),
		})
	}

	return w, nil
}

// Start inicia o loop de observação
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.watchLoop()

	if w.logger != nil {
		w.logger.Info("Overrides watcher started", map[string]interface{}{
			"file": w.path,
		})
	}
}

// Stop encerra o watcher
func (w *Watcher) Stop() error {
	close(w.stopCh)
	w.wg.Wait()

	w.mu.Lock()
	if w.debouncer != nil {
		w.debouncer.Stop()
	}
	w.mu.Unlock()

	return w.watcher.Close()
}

// watchLoop processa eventos do filesystem
func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Error("Overrides watcher error", err, nil)
			}
			if w.config.OnError != nil {
				w.config.OnError(fmt.Errorf("watcher error: %w", err))
			}

		case <-w.stopCh:
			return
		}
	}
}

// handleEvent trata um evento de filesystem relevante
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Name != w.path {
		return
	}

	switch {
	case event.Op&fsnotify.Write == fsnotify.Write:
		w.scheduleReload()

	case event.Op&fsnotify.Create == fsnotify.Create:
		w.scheduleReload()

	case event.Op&fsnotify.Remove == fsnotify.Remove:
		if w.logger != nil {
			w.logger.Warn("Overrides file removed", map[string]interface{}{
				"file": event.Name,
			})
		}
		// Re-adiciona para quando o arquivo for recriado
		w.watcher.Add(event.Name)

	case event.Op&fsnotify.Rename == fsnotify.Rename:
		// Escrita atômica: re-observa o caminho original
		w.watcher.Add(w.path)
		w.scheduleReload()
	}
}

// scheduleReload agenda uma recarga com debounce
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debouncer != nil {
		w.debouncer.Stop()
	}

	w.debouncer = time.AfterFunc(w.config.DebounceDuration, func() {
		if err := w.reload(); err != nil {
			if w.logger != nil {
				w.logger.Error("Overrides reload failed", err, nil)
			}
			if w.config.OnError != nil {
				w.config.OnError(err)
			}
		}
	})
}

// reload carrega, valida e aplica o arquivo de overrides
func (w *Watcher) reload() error {
	if w.logger != nil {
		w.logger.Info("Reloading overrides", map[string]interface{}{
			"file": w.path,
		})
	}

	loader := &Loader{config: &Config{OverridesFile: w.path}}
	overrides, err := loader.LoadOverrides()
	if err != nil {
		return fmt.Errorf("failed to load overrides: %w", err)
	}

	if w.config.OnChange != nil {
		if err := w.config.OnChange(overrides); err != nil {
			return fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	if w.logger != nil {
		w.logger.Info("Overrides reloaded successfully", nil)
	}
	return nil
}
