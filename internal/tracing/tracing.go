// Пакет tracing — инициализация OpenTelemetry (OTLP HTTP exporter).
// Без VP_OTLP_ENDPOINT глобальный провайдер остаётся no-op.
package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ShutdownFunc завершает экспорт накопленных span.
type ShutdownFunc func(context.Context) error

// Init настраивает глобальный TracerProvider.
// endpoint — host:port OTLP HTTP приёмника; пустой — трассировка выключена.
func Init(ctx context.Context, serviceName, version, endpoint string, logger *slog.Logger) (ShutdownFunc, error) {
	// Пропагация контекста нужна и без экспорта: заголовки traceparent
	// проходят через сервис без изменений.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if endpoint == "" {
		logger.Info("Трассировка отключена (VP_OTLP_ENDPOINT не задан)")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("создание OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("создание resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.1))),
	)
	otel.SetTracerProvider(tp)

	logger.Info("Трассировка включена", slog.String("endpoint", endpoint))
	return tp.Shutdown, nil
}
