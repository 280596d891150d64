// Copyright 2025 Microsoft Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

// Configure sets up the process-global OpenTelemetry trace provider that
// InstrumentedStore and InstrumentedLockClient emit spans through. It is
// meant to be called once, by whatever host process embeds the session
// store, before the first request is served.
//
// The exporter is selected the same way autoexport always does, via the
// OTEL_TRACES_EXPORTER/OTEL_EXPORTER_OTLP_TRACES_* environment variables;
// with none set, tracing is a no-op and spans are discarded at negligible
// cost. serviceName and any extra resourceAttrs are attached to every span
// this process emits.
func Configure(ctx context.Context, logger logr.Logger, serviceName string, resourceAttrs ...attribute.KeyValue) (shutdown func(context.Context) error, err error) {
	exp, err := autoexport.NewSpanExporter(ctx, autoexport.WithFallbackSpanExporter(newNoopFactory))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTEL exporter: %w", err)
	}

	isNoop := autoexport.IsNoneSpanExporter(exp)
	if _, ok := exp.(*noopSpanExporter); ok {
		isNoop = true
	}
	logger.Info("initialising OpenTelemetry tracer", "isNoop", isNoop)

	opts := []resource.Option{resource.WithHost()}
	opts = append(opts, resource.WithAttributes(attribute.String("service.name", serviceName)))
	if len(resourceAttrs) > 0 {
		opts = append(opts, resource.WithAttributes(resourceAttrs...))
	}
	resources, err := resource.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise trace resources: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(resources),
	)
	otel.SetTracerProvider(tp)

	propagator := propagation.NewCompositeTextMapPropagator(propagation.Baggage{}, propagation.TraceContext{})
	otel.SetTextMapPropagator(propagator)

	otel.SetErrorHandler(otelErrorHandlerFunc(func(err error) {
		logger.Error(err, "OpenTelemetry error handler")
	}))

	return func(shutdownCtx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	}, nil
}

type otelErrorHandlerFunc func(error)

// Handle implements otel.ErrorHandler.
func (f otelErrorHandlerFunc) Handle(err error) {
	f(err)
}

func newNoopFactory(_ context.Context) (trace.SpanExporter, error) {
	return &noopSpanExporter{}, nil
}

var _ trace.SpanExporter = noopSpanExporter{}

// noopSpanExporter backstops autoexport when no OTEL_TRACES_EXPORTER is
// configured, so Configure never fails (or talks to a collector) in an
// environment that hasn't opted into tracing.
type noopSpanExporter struct{}

func (e noopSpanExporter) ExportSpans(ctx context.Context, spans []trace.ReadOnlySpan) error {
	return nil
}

func (e noopSpanExporter) Shutdown(ctx context.Context) error {
	return nil
}
