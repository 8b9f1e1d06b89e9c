package main

import (
	"context"
	"log/slog"

	"github.com/dukex/agentflow/pkg/eventbus"
	"github.com/dukex/agentflow/pkg/events"
)

// subscribeEventLog writes every published event to the log at debug level,
// and run failures at warn.
func subscribeEventLog(ctx context.Context, bus eventbus.EventSubscriber, logger *slog.Logger) error {
	logger = logger.With("module", "event_log")

	handlers := map[events.EventType]eventbus.EventHandler{
		events.WorkflowSavedEvent: func(ctx context.Context, event any) error {
			if e, ok := event.(*events.WorkflowSaved); ok {
				logger.DebugContext(ctx, "Workflow saved",
					"workflow_id", e.WorkflowID, "version", e.Version, "created", e.Created, "nodes", e.Nodes)
			}

			return nil
		},
		events.WorkflowDeletedEvent: func(ctx context.Context, event any) error {
			if e, ok := event.(*events.WorkflowDeleted); ok {
				logger.DebugContext(ctx, "Workflow deleted", "workflow_id", e.WorkflowID)
			}

			return nil
		},
		events.NodeExecutedEvent: func(ctx context.Context, event any) error {
			if e, ok := event.(*events.NodeExecuted); ok {
				logger.DebugContext(ctx, "Node executed",
					"workflow_id", e.WorkflowID, "node_id", e.NodeID, "success", e.Success, "duration_ms", e.DurationMs)
			}

			return nil
		},
		events.RunCompletedEvent: func(ctx context.Context, event any) error {
			e, ok := event.(*events.RunCompleted)
			if !ok {
				return nil
			}

			level := slog.LevelDebug
			if e.Failed {
				level = slog.LevelWarn
			}

			logger.Log(ctx, level, "Run completed",
				"workflow_id", e.WorkflowID, "run_id", e.RunID, "steps", e.Steps, "failed", e.Failed, "halted", e.Halted)

			return nil
		},
		events.CatalogRefreshedEvent: func(ctx context.Context, event any) error {
			if e, ok := event.(*events.CatalogRefreshed); ok {
				logger.DebugContext(ctx, "Catalog refreshed", "models", e.Models, "error", e.Error)
			}

			return nil
		},
	}

	for eventType, handler := range handlers {
		if err := bus.Handle(ctx, eventType, handler); err != nil {
			return err
		}
	}

	return bus.Subscribe(ctx)
}
