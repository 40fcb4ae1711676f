// Package service drives one query turn: session resolution, input
// normalization, the oracle event stream and tool dispatch.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kisansathi/orchestrator/internal/config"
	"github.com/kisansathi/orchestrator/internal/domain"
	"github.com/kisansathi/orchestrator/internal/oracle"
	"github.com/kisansathi/orchestrator/internal/policy"
	"github.com/kisansathi/orchestrator/internal/push"
	"github.com/kisansathi/orchestrator/internal/session"
	"github.com/kisansathi/orchestrator/internal/tools"
)

// TraceStore persists turn trace events.
type TraceStore interface {
	CreateTraceEvent(ctx context.Context, ev *domain.TraceEvent) error
	GetTraceEvents(ctx context.Context, sessionID string, afterTs int64, limit int) ([]domain.TraceEvent, error)
}

// Service composes the query pipeline.
type Service struct {
	sessions *session.Store
	traces   TraceStore
	oracle   oracle.TurnOpener
	registry *tools.Registry
	policy   *policy.Engine
	hub      *push.Hub
	config   *config.Config
	logger   *slog.Logger
}

// New wires the service. The hub may be nil when push is disabled.
func New(sessions *session.Store, traces TraceStore, opener oracle.TurnOpener, registry *tools.Registry, policyEngine *policy.Engine, hub *push.Hub, cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		sessions: sessions,
		traces:   traces,
		oracle:   opener,
		registry: registry,
		policy:   policyEngine,
		hub:      hub,
		config:   cfg,
		logger:   logger,
	}
}

// Tools returns the registered tool descriptors in registration order.
func (s *Service) Tools() []tools.Descriptor {
	return s.registry.List()
}

// Session returns a copy of the session, or session.ErrNotFound.
func (s *Service) Session(sessionID string) (*domain.Session, error) {
	return s.sessions.Get(sessionID)
}

// TurnEvents returns a session's trace events after the given timestamp.
func (s *Service) TurnEvents(ctx context.Context, sessionID string, afterTs int64, limit int) ([]domain.TraceEvent, error) {
	return s.traces.GetTraceEvents(ctx, sessionID, afterTs, limit)
}

// recordTrace appends one trace event; failures are logged, never fatal.
func (s *Service) recordTrace(ctx context.Context, sessionID, turnID string, typ domain.TraceEventType, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal trace payload", "type", typ, "error", err)
		return
	}
	ev := &domain.TraceEvent{
		EventID:   "evt_" + uuid.New().String()[:8],
		SessionID: sessionID,
		TurnID:    turnID,
		Ts:        time.Now().UnixMilli(),
		Type:      typ,
		Payload:   data,
	}
	if err := s.traces.CreateTraceEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to record trace event", "type", typ, "error", err)
	}
}

// publish pushes a turn progress notice; no-op without a hub.
func (s *Service) publish(sessionID, turnID, typ string, payload interface{}) {
	if s.hub == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.hub.Publish(push.Notice{
		Type:      typ,
		SessionID: sessionID,
		TurnID:    turnID,
		Payload:   data,
	}); err != nil {
		s.logger.Warn("failed to publish notice", "type", typ, "error", err)
	}
}

func jsonString(v string) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
