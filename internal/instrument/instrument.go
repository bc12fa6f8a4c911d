package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Context keys
type ctxKey int

const (
	traceIDKey ctxKey = iota
	parentSpanIDKey
	instrumenterKey
)

// Instrumenter interface defines the tracing API.
type Instrumenter interface {
	StartSpan(ctx context.Context, component, action string) (context.Context, Span)
}

// Span interface represents a timed operation span.
type Span interface {
	End()
	SetStatus(status string)
	SetMetadata(key string, value any)
	SetEntity(model, recordID string)
	TraceID() string
	SpanID() string
}

func newUUID() string {
	return uuid.New().String()
}

// WithTraceID sets the trace ID in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

func withParentSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, parentSpanIDKey, spanID)
}

func getParentSpanID(ctx context.Context) string {
	if v, ok := ctx.Value(parentSpanIDKey).(string); ok {
		return v
	}
	return ""
}

// WithInstrumenter sets the instrumenter in the context.
func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, instrumenterKey, inst)
}

// GetInstrumenter returns the instrumenter from the context,
// or a NoopInstrumenter if none is set.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if v, ok := ctx.Value(instrumenterKey).(Instrumenter); ok {
		return v
	}
	return &NoopInstrumenter{}
}

// Start is StartSpan on the context's instrumenter.
func Start(ctx context.Context, component, action string) (context.Context, Span) {
	return GetInstrumenter(ctx).StartSpan(ctx, component, action)
}

// LogInstrumenter writes one debug line per finished span.
type LogInstrumenter struct {
	logger *zap.Logger
}

func NewLogInstrumenter(logger *zap.Logger) *LogInstrumenter {
	return &LogInstrumenter{logger: logger}
}

// StartSpan creates a new span and returns the updated context.
func (i *LogInstrumenter) StartSpan(ctx context.Context, component, action string) (context.Context, Span) {
	span := &logSpan{
		logger:       i.logger,
		traceID:      GetTraceID(ctx),
		spanID:       newUUID(),
		parentSpanID: getParentSpanID(ctx),
		component:    component,
		action:       action,
		startTime:    time.Now(),
		metadata:     make(map[string]any),
	}
	// child spans reference this span as parent
	return withParentSpanID(ctx, span.spanID), span
}

type logSpan struct {
	logger       *zap.Logger
	traceID      string
	spanID       string
	parentSpanID string
	component    string
	action       string
	model        string
	recordID     string
	status       string
	startTime    time.Time
	metadata     map[string]any
	mu           sync.Mutex
	ended        bool
}

func (s *logSpan) TraceID() string { return s.traceID }
func (s *logSpan) SpanID() string  { return s.spanID }

func (s *logSpan) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *logSpan) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = value
}

func (s *logSpan) SetEntity(model, recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
	s.recordID = recordID
}

func (s *logSpan) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true

	fields := []zap.Field{
		zap.String("trace_id", s.traceID),
		zap.String("span_id", s.spanID),
		zap.String("component", s.component),
		zap.String("action", s.action),
		zap.Float64("duration_ms", float64(time.Since(s.startTime).Microseconds())/1000.0),
	}
	if s.parentSpanID != "" {
		fields = append(fields, zap.String("parent_span_id", s.parentSpanID))
	}
	if s.model != "" {
		fields = append(fields, zap.String("model", s.model))
	}
	if s.recordID != "" {
		fields = append(fields, zap.String("record_id", s.recordID))
	}
	if s.status != "" {
		fields = append(fields, zap.String("status", s.status))
	}
	if len(s.metadata) > 0 {
		fields = append(fields, zap.Any("metadata", s.metadata))
	}
	s.logger.Debug("span", fields...)
}
