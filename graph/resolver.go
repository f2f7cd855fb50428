package graph

import (
	"context"

	"github.com/mmdatafocus/manufacturing_backend/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// This file will not be regenerated automatically.
//
// It serves as dependency injection for your app, add any dependencies you require here.

type Resolver struct {
	Tracer trace.Tracer
}

type WorkOrderStatusCount struct {
	Status models.WorkOrderStatus `json:"status"`
	Count  int64                  `json:"count"`
}

// startSpan is a no-op without a tracer so tests can build a bare Resolver.
func (r *Resolver) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func()) {
	if r.Tracer == nil {
		return ctx, func() {}
	}
	ctx, span := r.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func() { span.End() }
}
