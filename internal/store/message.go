package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

// CreateMessage inserts a new Message envelope.
func (s *Store) CreateMessage(ctx context.Context, m models.Message) error {
	artifactIDs, err := json.Marshal(m.ArtifactIDs)
	if err != nil {
		return caliberr.Internal("marshal artifact_ids: %v", err)
	}

	var to, toType, trajectory, scope any
	if m.ToAgentID != nil {
		to = m.ToAgentID.String()
	}
	if m.ToAgentType != nil {
		toType = *m.ToAgentType
	}
	if m.TrajectoryID != nil {
		trajectory = m.TrajectoryID.String()
	}
	if m.ScopeID != nil {
		scope = m.ScopeID.String()
	}

	_, err = s.querier(ctx).Exec(ctx, `
		INSERT INTO messages (
			id, tenant_id, from_agent_id, to_agent_id, to_agent_type,
			message_type, payload, trajectory_id, scope_id, artifact_ids,
			priority, expires_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		m.ID.String(), m.TenantID.String(), m.FromAgentID.String(), to, toType,
		m.MessageType, m.Payload, trajectory, scope, artifactIDs,
		string(m.Priority), m.ExpiresAt, m.CreatedAt,
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("create message: %w", err))
	}
	return nil
}

// PendingMessagesFor returns undelivered, unexpired messages addressed to
// an agent id or agent type, ordered by (priority desc, created_at asc) per
// spec §4.6, with message id as the final tie-break so two messages
// inserted in the same batch (identical created_at) still have a total,
// deterministic delivery order (spec §5 "Ordering guarantees").
func (s *Store) PendingMessagesFor(ctx context.Context, tenantID ids.TenantID, agentID ids.AgentID, agentType string, now time.Time) ([]models.Message, error) {
	rows, err := s.querier(ctx).Query(ctx, `
		SELECT id, from_agent_id, to_agent_id, to_agent_type, message_type,
		       payload, trajectory_id, scope_id, artifact_ids, priority,
		       expires_at, created_at, delivered_at, acknowledged_at
		FROM messages
		WHERE tenant_id = $1
		  AND delivered_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $2)
		  AND (to_agent_id = $3 OR to_agent_type = $4)
		ORDER BY
		  CASE priority
		    WHEN 'urgent' THEN 3 WHEN 'high' THEN 2
		    WHEN 'normal' THEN 1 ELSE 0
		  END DESC,
		  created_at ASC,
		  id ASC`,
		tenantID.String(), now, agentID.String(), agentType,
	)
	if err != nil {
		return nil, caliberr.Storage(fmt.Errorf("pending messages: %w", err))
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows, tenantID)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func scanMessage(row pgx.Rows, tenantID ids.TenantID) (models.Message, error) {
	var m models.Message
	var idStr, fromStr, messageType, priority string
	var toStr, toType, trajStr, scopeStr *string
	var artifactIDsRaw []byte

	if err := row.Scan(&idStr, &fromStr, &toStr, &toType, &messageType,
		&m.Payload, &trajStr, &scopeStr, &artifactIDsRaw, &priority,
		&m.ExpiresAt, &m.CreatedAt, &m.DeliveredAt, &m.AcknowledgedAt); err != nil {
		return models.Message{}, caliberr.Storage(fmt.Errorf("scan message: %w", err))
	}

	id, err := ids.ParseMessageID(idStr)
	if err != nil {
		return models.Message{}, caliberr.Internal("message row %s has malformed id: %v", idStr, err)
	}
	from, err := ids.ParseAgentID(fromStr)
	if err != nil {
		return models.Message{}, caliberr.Internal("message row %s has malformed from_agent_id: %v", idStr, err)
	}
	m.ID = id
	m.TenantID = tenantID
	m.FromAgentID = from
	m.MessageType = messageType
	m.Priority = enums.MessagePriority(priority)

	if toStr != nil {
		toID, err := ids.ParseAgentID(*toStr)
		if err != nil {
			return models.Message{}, caliberr.Internal("message row %s has malformed to_agent_id: %v", idStr, err)
		}
		m.ToAgentID = &toID
	}
	m.ToAgentType = toType
	if trajStr != nil {
		tid, err := ids.ParseTrajectoryID(*trajStr)
		if err != nil {
			return models.Message{}, caliberr.Internal("message row %s has malformed trajectory_id: %v", idStr, err)
		}
		m.TrajectoryID = &tid
	}
	if scopeStr != nil {
		sid, err := ids.ParseScopeID(*scopeStr)
		if err != nil {
			return models.Message{}, caliberr.Internal("message row %s has malformed scope_id: %v", idStr, err)
		}
		m.ScopeID = &sid
	}
	if len(artifactIDsRaw) > 0 {
		if err := json.Unmarshal(artifactIDsRaw, &m.ArtifactIDs); err != nil {
			return models.Message{}, caliberr.Internal("unmarshal artifact_ids: %v", err)
		}
	}
	return m, nil
}

// MarkMessageDelivered stamps delivered_at (spec §4.6 mark_delivered).
func (s *Store) MarkMessageDelivered(ctx context.Context, tenantID ids.TenantID, id ids.MessageID, at time.Time) error {
	tag, err := s.querier(ctx).Exec(ctx, `
		UPDATE messages SET delivered_at = $1
		WHERE tenant_id = $2 AND id = $3 AND delivered_at IS NULL`,
		at, tenantID.String(), id.String(),
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("mark message delivered: %w", err))
	}
	if tag.RowsAffected() == 0 {
		if !s.tenantRowExists(ctx, "messages", tenantID.String(), id.String()) {
			return s.classifyMiss(ctx, "messages", "Message", id.String(), true)
		}
		return caliberr.Conflict(caliberr.ReasonInvalidTransition, "message %s is already delivered", id.String())
	}
	return nil
}

// MarkMessageAcknowledged stamps acknowledged_at (spec §4.6 mark_acknowledged).
func (s *Store) MarkMessageAcknowledged(ctx context.Context, tenantID ids.TenantID, id ids.MessageID, at time.Time) error {
	tag, err := s.querier(ctx).Exec(ctx, `
		UPDATE messages SET acknowledged_at = $1
		WHERE tenant_id = $2 AND id = $3 AND delivered_at IS NOT NULL AND acknowledged_at IS NULL`,
		at, tenantID.String(), id.String(),
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("mark message acknowledged: %w", err))
	}
	if tag.RowsAffected() == 0 {
		if !s.tenantRowExists(ctx, "messages", tenantID.String(), id.String()) {
			return s.classifyMiss(ctx, "messages", "Message", id.String(), true)
		}
		return caliberr.Conflict(caliberr.ReasonInvalidTransition, "message %s is not delivered or already acknowledged", id.String())
	}
	return nil
}

// GetMessageDeliveryState returns a message's delivered/acknowledged flags,
// used by internal/messages to distinguish "already in the target state"
// (idempotent no-op) from "does not exist" after a zero-row mark fails.
func (s *Store) GetMessageDeliveryState(ctx context.Context, tenantID ids.TenantID, id ids.MessageID) (delivered, acknowledged bool, err error) {
	row := s.querier(ctx).QueryRow(ctx, `
		SELECT delivered_at IS NOT NULL, acknowledged_at IS NOT NULL
		FROM messages WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), id.String(),
	)
	if scanErr := row.Scan(&delivered, &acknowledged); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return false, false, s.classifyMiss(ctx, "messages", "Message", id.String(), false)
		}
		return false, false, caliberr.Storage(fmt.Errorf("get message delivery state: %w", scanErr))
	}
	return delivered, acknowledged, nil
}

// DeleteExpiredMessages purges undelivered messages past their expiry,
// driven by the reaper cron job.
func (s *Store) DeleteExpiredMessages(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := s.querier(ctx).Exec(ctx,
		`DELETE FROM messages WHERE delivered_at IS NULL AND expires_at IS NOT NULL AND expires_at < $1`,
		asOf,
	)
	if err != nil {
		return 0, caliberr.Storage(fmt.Errorf("delete expired messages: %w", err))
	}
	return tag.RowsAffected(), nil
}
