package instrument

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// counterValue sums a counter vector across its label values.
func counterValue(col prometheus.Collector) float64 {
	c := make(chan prometheus.Metric)
	go func() {
		col.Collect(c)
		close(c)
	}()
	var total float64
	for x := range c {
		m := dto.Metric{}
		_ = x.Write(&m)
		if h := m.GetHistogram(); h != nil {
			total += float64(h.GetSampleCount())
		} else {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestSpansNestAndLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	inst := NewLogInstrumenter(zap.New(core))

	ctx := WithInstrumenter(WithTraceID(context.Background(), "trace-1"), inst)
	ctx, root := Start(ctx, "http", "request")
	_, child := Start(ctx, "engine", "list")
	child.SetEntity("users", "")
	child.SetStatus("ok")
	child.End()
	child.End()
	root.End()

	entries := logs.FilterMessage("span").All()
	require.Len(t, entries, 2)
	first := entries[0].ContextMap()
	assert.Equal(t, "trace-1", first["trace_id"])
	assert.Equal(t, root.SpanID(), first["parent_span_id"])
	assert.Equal(t, "users", first["model"])
	assert.Equal(t, "trace-1", child.TraceID())
}

func TestStartWithoutInstrumenterIsNoop(t *testing.T) {
	_, span := Start(context.Background(), "engine", "list")
	assert.IsType(t, &NoopSpan{}, span)
	assert.Empty(t, span.TraceID())
}

func TestMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	metrics := NewMetrics()
	app := fiber.New()
	app.Use(Middleware(NewLogInstrumenter(zap.NewNop()), metrics, zap.New(core)))
	app.Get("/ok", func(c *fiber.Ctx) error {
		return c.SendString(GetTraceID(c.UserContext()))
	})
	app.Get("/fail", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "nope")
	})
	app.Get("/metrics", metrics.Handler())

	req := httptest.NewRequest("GET", "/ok", nil)
	req.Header.Set("X-Trace-ID", "abc")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "abc", string(body))
	assert.Equal(t, "abc", resp.Header.Get("X-Trace-ID"))

	resp, err = app.Test(httptest.NewRequest("GET", "/fail", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	assert.EqualValues(t, fiber.StatusTeapot, entries[1].ContextMap()["status"])
	assert.Equal(t, float64(2), counterValue(metrics.RequestDuration))

	metrics.ObserveSchemaCache("users", "miss")
	metrics.ObserveSchemaCache("users", "hit")
	assert.Equal(t, float64(2), counterValue(metrics.SchemaCache))

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `crud6_schema_cache_total{model="users",outcome="hit"} 1`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSchemaCache("users", "hit")
	m.ObserveRelationWrite("users", "roles", "attach")
}
