package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const scopeName = "github.com/kestrelhq/persona-supervisor/observer"

// Instruments holds the OTEL metric instruments backing MetricsObserver,
// grounded on nevindra-oasis's observer.Instruments/Init pair, trimmed to
// the four series SPEC_FULL.md asks for: tick duration, dispatch count,
// retry count, and personality-call latency.
type Instruments struct {
	Meter metric.Meter

	TickDuration        metric.Float64Histogram
	Dispatched          metric.Int64Counter
	Retries             metric.Int64Counter
	PersonalityDuration metric.Float64Histogram
}

// InitMetrics sets up an OTLP-over-HTTP metric provider. Configuration
// comes from the standard OTEL_EXPORTER_OTLP_* environment variables.
// The returned shutdown func must be called on application exit.
func InitMetrics(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("persona-supervisor")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	exp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	inst, err := newInstruments()
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	return inst, mp.Shutdown, nil
}

func newInstruments() (*Instruments, error) {
	meter := otel.Meter(scopeName)

	tickDuration, err := meter.Float64Histogram("supervisor.tick.duration",
		metric.WithDescription("wall-clock duration of one poll-through-dispatch tick"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	dispatched, err := meter.Int64Counter("supervisor.actions.dispatched",
		metric.WithDescription("reactions and messages dispatched by the executor"))
	if err != nil {
		return nil, err
	}
	retries, err := meter.Int64Counter("supervisor.subgraph.retries",
		metric.WithDescription("validator-rejected draft retries across persona subgraphs"))
	if err != nil {
		return nil, err
	}
	personalityDuration, err := meter.Float64Histogram("supervisor.personality.call_duration",
		metric.WithDescription("per-trait personality analyzer LLM call duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Meter:               meter,
		TickDuration:        tickDuration,
		Dispatched:          dispatched,
		Retries:             retries,
		PersonalityDuration: personalityDuration,
	}, nil
}

// MetricsObserver implements supervisor.Observer by recording OTEL metrics.
// It ignores suspend/resume, counts only validator->text_generator node
// transitions (as retries), and is
// meant to be composed alongside a JSONObserver or ZerologObserver inside
// a Composite rather than used standalone.
type MetricsObserver struct {
	inst      *Instruments
	tickStart time.Time
}

// NewMetricsObserver wraps inst as a supervisor.Observer.
func NewMetricsObserver(inst *Instruments) *MetricsObserver {
	return &MetricsObserver{inst: inst}
}

func (m *MetricsObserver) OnTickStart(ctx context.Context, chatID string, newMessages int) {
	m.tickStart = time.Now()
}

func (m *MetricsObserver) OnTickEnd(ctx context.Context, chatID string, dispatched int, err error) {
	if !m.tickStart.IsZero() {
		m.inst.TickDuration.Record(ctx, time.Since(m.tickStart).Seconds(),
			metric.WithAttributes())
	}
	if dispatched > 0 {
		m.inst.Dispatched.Add(ctx, int64(dispatched))
	}
}

func (m *MetricsObserver) OnLLMCall(ctx context.Context, component, model string, dur time.Duration, err error) {
	if component != "personality" {
		return
	}
	m.inst.PersonalityDuration.Record(ctx, dur.Seconds())
}

func (m *MetricsObserver) OnNodeTransition(ctx context.Context, persona, from, to string) {
	if to == "text_generator" && from == "validator" {
		m.inst.Retries.Add(ctx, 1)
	}
}

func (m *MetricsObserver) OnSuspend(ctx context.Context, chatID string, pending int) {}

func (m *MetricsObserver) OnResume(ctx context.Context, chatID string, decisions int) {}

func (m *MetricsObserver) OnError(ctx context.Context, component string, err error) {}
