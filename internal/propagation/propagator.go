package propagation

import (
	"context"
	"sync"

	"log-governor/internal/domain"
)

// Mode seleciona o backend de armazenamento de contexto
type Mode string

const (
	// ModeAuto deixa o probe de capacidade escolher o backend
	ModeAuto Mode = "auto"
	// ModeNative propaga via context.Context (primitiva nativa do runtime)
	ModeNative Mode = "native"
	// ModeSlot usa um slot mutável único para runtimes sem propagação nativa
	ModeSlot Mode = "slot"
)

// nativeStorage implementa domain.ContextStorage sobre context.Context
// O contexto acompanha automaticamente qualquer continuação que receba o ctx
type nativeStorage struct{}

func (nativeStorage) Run(ctx context.Context, lc *domain.LoggerContext, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	fn(domain.ContextWithLoggerContext(ctx, lc))
}

func (nativeStorage) Get(ctx context.Context) (*domain.LoggerContext, bool) {
	return domain.LoggerContextFrom(ctx)
}

func (nativeStorage) Bind(lc *domain.LoggerContext, fn func(ctx context.Context)) func(ctx context.Context) {
	return func(ctx context.Context) {
		if ctx == nil {
			ctx = context.Background()
		}
		fn(domain.ContextWithLoggerContext(ctx, lc))
	}
}

func (nativeStorage) Name() string { return string(ModeNative) }

// slotStorage implementa domain.ContextStorage com um único slot mutável
//
// Correto para árvores de chamada síncronas e callbacks explicitamente
// bindados; NÃO acompanha continuações assíncronas não-bindadas. Chamadores
// no runtime restrito precisam re-bindar o contexto em toda fronteira
// assíncrona. Assimetria intencional do design, não um defeito a unificar
type slotStorage struct {
	mu      sync.Mutex
	current *domain.LoggerContext
	present bool
}

func (s *slotStorage) Run(ctx context.Context, lc *domain.LoggerContext, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	prev, prevPresent := s.current, s.present
	s.current, s.present = lc, true
	s.mu.Unlock()

	// Restaura o valor anterior mesmo quando fn entra em pânico
	defer func() {
		s.mu.Lock()
		s.current, s.present = prev, prevPresent
		s.mu.Unlock()
	}()

	fn(ctx)
}

func (s *slotStorage) Get(ctx context.Context) (*domain.LoggerContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.present || s.current == nil {
		return nil, false
	}
	return s.current, true
}

func (s *slotStorage) Bind(lc *domain.LoggerContext, fn func(ctx context.Context)) func(ctx context.Context) {
	return func(ctx context.Context) {
		s.Run(ctx, lc, fn)
	}
}

func (s *slotStorage) Name() string { return string(ModeSlot) }

// Propagator expõe a camada de propagação de contexto sobre o backend
// selecionado na construção
type Propagator struct {
	storage domain.ContextStorage
	logger  domain.Logger
}

// NewPropagator cria um Propagator selecionando o backend por probe
// A decisão acontece uma única vez na construção; call sites nunca
// ramificam sobre o tipo de runtime
func NewPropagator(mode Mode, logger domain.Logger) *Propagator {
	storage := probeStorage(mode)

	if logger != nil {
		logger.Info("Context propagation initialized", map[string]interface{}{
			"backend": storage.Name(),
		})
	}

	return &Propagator{
		storage: storage,
		logger:  logger,
	}
}

// probeStorage resolve o backend para o modo pedido
// O runtime Go sempre oferece context.Context, então auto resolve para o
// backend nativo; o slot existe para composições que não conseguem
// encadear um contexto (callbacks legados, código dirigido por timers)
func probeStorage(mode Mode) domain.ContextStorage {
	switch mode {
	case ModeSlot:
		return &slotStorage{}
	case ModeNative, ModeAuto, "":
		return nativeStorage{}
	default:
		return nativeStorage{}
	}
}

// Storage expõe o backend selecionado
func (p *Propagator) Storage() domain.ContextStorage {
	return p.storage
}

// Backend devolve o nome do backend selecionado
func (p *Propagator) Backend() string {
	return p.storage.Name()
}

// RunWithContext executa fn com lc como contexto corrente
func (p *Propagator) RunWithContext(ctx context.Context, lc *domain.LoggerContext, fn func(ctx context.Context)) {
	p.storage.Run(ctx, lc, fn)
}

// GetContext devolve o contexto corrente, se houver
func (p *Propagator) GetContext(ctx context.Context) (*domain.LoggerContext, bool) {
	return p.storage.Get(ctx)
}

// Bind fecha sobre lc para reentrar nele quando o callback executar
func (p *Propagator) Bind(lc *domain.LoggerContext, fn func(ctx context.Context)) func(ctx context.Context) {
	return p.storage.Bind(lc, fn)
}

// UpdateContext devolve um snapshot novo mesclando patch sobre o contexto
// corrente, sem mutar o contexto ativo (copy-on-write)
func (p *Propagator) UpdateContext(ctx context.Context, patch *domain.LoggerContext) *domain.LoggerContext {
	base, ok := p.storage.Get(ctx)
	if !ok {
		base = &domain.LoggerContext{}
	}
	return MergeContext(base, patch)
}

// MergeContext mescla patch sobre base produzindo um snapshot novo
func MergeContext(base, patch *domain.LoggerContext) *domain.LoggerContext {
	merged := *base
	if patch == nil {
		return &merged
	}

	if patch.RequestID != "" {
		merged.RequestID = patch.RequestID
	}
	if patch.TraceID != "" {
		merged.TraceID = patch.TraceID
	}
	if patch.SpanID != "" {
		merged.SpanID = patch.SpanID
	}
	if patch.UserID != "" {
		merged.UserID = patch.UserID
	}
	if patch.SessionID != "" {
		merged.SessionID = patch.SessionID
	}
	if patch.EventName != "" {
		merged.EventName = patch.EventName
	}
	if patch.EventCategory != "" {
		merged.EventCategory = patch.EventCategory
	}

	return &merged
}

// SetTraceInfo grava trace/span mutando o contexto vivo em posição
//
// Exceção deliberada ao modelo copy-on-write: referências já capturadas
// (callbacks de timer) dependem de enxergar ids de trace que chegam depois
// da captura. Não unificar com UpdateContext sem revisar esses call sites
func SetTraceInfo(lc *domain.LoggerContext, traceID, spanID string) {
	if lc == nil {
		return
	}
	if traceID != "" {
		lc.TraceID = traceID
	}
	if spanID != "" {
		lc.SpanID = spanID
	}
}
