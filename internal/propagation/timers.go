package propagation

import (
	"context"
	"sync"
	"time"

	"log-governor/internal/domain"
)

// TimerHandle representa um timer agendado com contexto capturado
type TimerHandle struct {
	manager *TimerContextManager
	mu      sync.Mutex
	stop    func()
	cleared bool
}

// Clear cancela o timer e o remove do manager
func (h *TimerHandle) Clear() {
	h.mu.Lock()
	if h.cleared {
		h.mu.Unlock()
		return
	}
	h.cleared = true
	stop := h.stop
	h.mu.Unlock()

	if stop != nil {
		stop()
	}
	if h.manager != nil {
		h.manager.deregister(h)
	}
}

// TimerContextManager agenda timers que capturam o contexto corrente no
// momento do agendamento e reentram nele quando o callback dispara,
// independente do backend. Um callback atrasado/periódico observa o contexto
// da hora do agendamento, não o que estiver ambiente na hora do disparo
type TimerContextManager struct {
	storage domain.ContextStorage
	logger  domain.Logger

	mu     sync.Mutex
	timers map[*TimerHandle]struct{}
}

// NewTimerContextManager cria um novo TimerContextManager
func NewTimerContextManager(storage domain.ContextStorage, logger domain.Logger) *TimerContextManager {
	return &TimerContextManager{
		storage: storage,
		logger:  logger,
		timers:  make(map[*TimerHandle]struct{}),
	}
}

// SetTimeoutWithContext agenda fn para disparar uma vez após delay
// O contexto corrente é capturado agora e restaurado no disparo
func (m *TimerContextManager) SetTimeoutWithContext(ctx context.Context, delay time.Duration, fn func(ctx context.Context)) *TimerHandle {
	captured, _ := m.storage.Get(ctx)
	handle := &TimerHandle{manager: m}

	timer := time.AfterFunc(delay, func() {
		defer m.deregister(handle)
		m.fire(captured, fn)
	})
	handle.stop = func() { timer.Stop() }

	m.register(handle)
	return handle
}

// SetIntervalWithContext agenda fn para disparar a cada interval
// Cada disparo reentra no contexto capturado no agendamento
func (m *TimerContextManager) SetIntervalWithContext(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) *TimerHandle {
	captured, _ := m.storage.Get(ctx)
	handle := &TimerHandle{manager: m}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once
	handle.stop = func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}

	go func() {
		for {
			select {
			case <-ticker.C:
				m.fire(captured, fn)
			case <-done:
				return
			}
		}
	}()

	m.register(handle)
	return handle
}

// ClearAllTimers cancela todos os timers pendentes e esvazia o conjunto
// Usado para teardown determinístico
func (m *TimerContextManager) ClearAllTimers() {
	m.mu.Lock()
	pending := make([]*TimerHandle, 0, len(m.timers))
	for handle := range m.timers {
		pending = append(pending, handle)
	}
	m.timers = make(map[*TimerHandle]struct{})
	m.mu.Unlock()

	for _, handle := range pending {
		handle.mu.Lock()
		handle.cleared = true
		stop := handle.stop
		handle.mu.Unlock()
		if stop != nil {
			stop()
		}
	}

	if m.logger != nil && len(pending) > 0 {
		m.logger.Debug("All context timers cleared", map[string]interface{}{
			"cleared": len(pending),
		})
	}
}

// ActiveTimers devolve a quantidade de timers pendentes
func (m *TimerContextManager) ActiveTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// fire reentra no contexto capturado e executa o callback
func (m *TimerContextManager) fire(captured *domain.LoggerContext, fn func(ctx context.Context)) {
	if captured == nil {
		fn(context.Background())
		return
	}
	m.storage.Run(context.Background(), captured, fn)
}

// register adiciona um handle ao conjunto rastreado
func (m *TimerContextManager) register(handle *TimerHandle) {
	m.mu.Lock()
	m.timers[handle] = struct{}{}
	m.mu.Unlock()
}

// deregister remove um handle do conjunto rastreado
func (m *TimerContextManager) deregister(handle *TimerHandle) {
	m.mu.Lock()
	delete(m.timers, handle)
	m.mu.Unlock()
}
