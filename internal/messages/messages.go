// Package messages implements CALIBER's persistent message bus (spec C6):
// send, pending-message retrieval, delivery/acknowledgement marking, and
// opportunistic reaping of expired undelivered envelopes.
//
// The persistent, at-least-once envelope with idempotent ack generalizes
// the teacher's pkg/events/manager.go + publisher.go catchup-by-id pattern
// from a pub/sub-over-websocket broadcast into a pull-based per-agent
// inbox, since spec §4.6 is explicitly "persistent... delivery,
// acknowledgement" rather than a fan-out stream.
package messages

import (
	"context"
	"log/slog"
	"time"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
	"github.com/Heyoub/caliber-sub001/internal/store"
)

// Listener is notified synchronously when a Message is sent, mirroring the
// teacher's events.Publisher callback registration (spec §4.6 "emits an
// event (if a listener is registered)"). Bus never blocks Send waiting on
// a listener's return value beyond invoking it.
type Listener func(models.Message)

// Bus is CALIBER's message bus, backed by a Store.
type Bus struct {
	store     *store.Store
	log       *slog.Logger
	listeners []Listener
}

// New builds a Bus over the given store.
func New(s *store.Store, log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{store: s, log: log}
}

// OnSend registers a Listener invoked after every successful Send.
func (b *Bus) OnSend(l Listener) {
	b.listeners = append(b.listeners, l)
}

// SendInput is the caller-supplied shape of a new Message (spec §3.1: "at
// least one [of to_agent_id, to_agent_type] must be set").
type SendInput struct {
	FromAgentID  ids.AgentID
	ToAgentID    *ids.AgentID
	ToAgentType  *string
	MessageType  string
	Payload      string
	TrajectoryID *ids.TrajectoryID
	ScopeID      *ids.ScopeID
	ArtifactIDs  []ids.ArtifactID
	Priority     enums.MessagePriority
	ExpiresAt    *time.Time
}

// Send inserts a new envelope with delivered_at/acknowledged_at unset and
// notifies any registered listener (spec §4.6).
func (b *Bus) Send(ctx context.Context, tenantID ids.TenantID, in SendInput) (models.Message, error) {
	if in.ToAgentID == nil && in.ToAgentType == nil {
		return models.Message{}, caliberr.Validation("to_agent_id", "at least one of to_agent_id or to_agent_type must be set")
	}
	if in.MessageType == "" {
		return models.Message{}, caliberr.Validation("message_type", "message_type is required")
	}
	priority := in.Priority
	if priority == "" {
		priority = enums.PriorityNormal
	}
	if !priority.IsValid() {
		return models.Message{}, caliberr.Validation("priority", "invalid message priority %q", in.Priority)
	}

	msg := models.Message{
		ID:           ids.NewMessageID(),
		TenantID:     tenantID,
		FromAgentID:  in.FromAgentID,
		ToAgentID:    in.ToAgentID,
		ToAgentType:  in.ToAgentType,
		MessageType:  in.MessageType,
		Payload:      in.Payload,
		TrajectoryID: in.TrajectoryID,
		ScopeID:      in.ScopeID,
		ArtifactIDs:  in.ArtifactIDs,
		Priority:     priority,
		ExpiresAt:    in.ExpiresAt,
		CreatedAt:    time.Now().UTC(),
	}
	if err := b.store.CreateMessage(ctx, msg); err != nil {
		return models.Message{}, err
	}

	for _, l := range b.listeners {
		l(msg)
	}
	return msg, nil
}

// GetPending returns every undelivered, unexpired message addressed to
// agent by id or by its agent_type, ordered (priority desc, created_at asc)
// per spec §4.6/§5 (the store layer also tie-breaks on message_id).
func (b *Bus) GetPending(ctx context.Context, agent models.Agent) ([]models.Message, error) {
	return b.store.PendingMessagesFor(ctx, agent.TenantID, agent.ID, agent.AgentType, time.Now().UTC())
}

// MarkDelivered stamps delivered_at. Idempotent: a message already
// delivered returns success without mutating the timestamp (spec §8
// "mark_delivered and mark_acknowledged are idempotent ... subsequent
// calls return success without mutating timestamps").
func (b *Bus) MarkDelivered(ctx context.Context, tenantID ids.TenantID, id ids.MessageID) error {
	err := b.store.MarkMessageDelivered(ctx, tenantID, id, time.Now().UTC())
	if err == nil {
		return nil
	}
	if caliberr.HasKind(err, caliberr.KindConflict) {
		// The store only returns Conflict when the row exists under this
		// tenant, so a zero-row update means the message was already
		// delivered: idempotent success (spec §8). Missing and cross-tenant
		// messages surface as NotFound / PermissionDenied directly.
		return nil
	}
	return err
}

// MarkAcknowledged stamps acknowledged_at. Idempotent the same way
// MarkDelivered is: a message already acknowledged returns success with no
// mutation; a message never delivered is a genuine Conflict (acknowledging
// before delivery is not a valid state, and is distinct from the redelivery
// tolerance spec §9 calls for on the consumer side).
func (b *Bus) MarkAcknowledged(ctx context.Context, tenantID ids.TenantID, id ids.MessageID) error {
	err := b.store.MarkMessageAcknowledged(ctx, tenantID, id, time.Now().UTC())
	if err == nil {
		return nil
	}
	if caliberr.HasKind(err, caliberr.KindConflict) {
		// Conflict means the row exists under this tenant: already
		// acknowledged (idempotent success) or not yet delivered (a real
		// Conflict). Re-read to tell the two apart.
		delivered, acked, getErr := b.store.GetMessageDeliveryState(ctx, tenantID, id)
		if getErr == nil && delivered && acked {
			return nil
		}
	}
	return err
}

// ReapExpired deletes every undelivered message whose expires_at has
// passed (spec §3.2 "eligible for reaping"; §4.6 "reaped opportunistically").
func (b *Bus) ReapExpired(ctx context.Context) (int64, error) {
	n, err := b.store.DeleteExpiredMessages(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		b.log.Info("reaped expired messages", "count", n)
	}
	return n, nil
}
