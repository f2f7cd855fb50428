package main

import (
	"context"
	"os"
	"strings"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/workflow"
	"github.com/sirupsen/logrus"
)

// shouldRunDirectOutboxProcessor reports whether outbox events should be drained locally instead of
// going to Pub/Sub. Intended for local/dev environments.
func shouldRunDirectOutboxProcessor() bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv("OUTBOX_DIRECT_PROCESSING")))
	return val == "1" || val == "true" || val == "yes"
}

// directEventPublisher logs each event and acknowledges it with a synthetic message id.
func directEventPublisher(logger *logrus.Logger) workflow.PublishFunc {
	return func(ctx context.Context, msg config.EventMessage) (string, error) {
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"field":          "OutboxDirectProcessor",
				"company_id":     msg.CompanyId,
				"event_type":     msg.EventType,
				"reference_type": msg.ReferenceType,
				"reference_id":   msg.ReferenceId,
				"correlation_id": msg.CorrelationId,
			}).Info("manufacturing event delivered locally")
		}
		return "direct-" + msg.EventType, nil
	}
}

// newOutboxDispatcher returns nil when event delivery is switched off; events then stay PENDING.
func newOutboxDispatcher(logger *logrus.Logger) *workflow.OutboxDispatcher {
	switch {
	case config.PublishEventsEnabled():
		return workflow.NewOutboxDispatcher(config.GetDB(), logger)
	case shouldRunDirectOutboxProcessor():
		d := workflow.NewOutboxDispatcher(config.GetDB(), logger)
		d.Publish = directEventPublisher(logger)
		return d
	}
	return nil
}
