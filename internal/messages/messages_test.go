package messages_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Heyoub/caliber-sub001/internal/dbtest"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/messages"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

func newTestTenant(t *testing.T, st interface {
	CreateTenant(context.Context, models.Tenant) error
}) ids.TenantID {
	t.Helper()
	tenantID := ids.NewTenantID()
	require.NoError(t, st.CreateTenant(context.Background(), models.Tenant{
		ID: tenantID, Name: "dbtest-tenant-" + tenantID.String(), CreatedAt: time.Now().UTC(),
	}))
	return tenantID
}

func testAgent(tenantID ids.TenantID, agentType string) models.Agent {
	return models.Agent{
		ID:              ids.NewAgentID(),
		TenantID:        tenantID,
		AgentType:       agentType,
		Status:          enums.AgentIdle,
		LastHeartbeatAt: time.Now().UTC(),
	}
}

func TestBus_SendRequiresRecipient(t *testing.T) {
	st := dbtest.NewStore(t)
	bus := messages.New(st, nil)
	tenantID := newTestTenant(t, st)

	_, err := bus.Send(context.Background(), tenantID, messages.SendInput{
		FromAgentID: ids.NewAgentID(),
		MessageType: "ping",
	})
	require.Error(t, err)
}

func TestBus_SendAndGetPendingByAgentID(t *testing.T) {
	st := dbtest.NewStore(t)
	bus := messages.New(st, nil)
	tenantID := newTestTenant(t, st)

	recipient := testAgent(tenantID, "worker")
	toID := recipient.ID

	var notified models.Message
	bus.OnSend(func(m models.Message) { notified = m })

	sent, err := bus.Send(context.Background(), tenantID, messages.SendInput{
		FromAgentID: ids.NewAgentID(),
		ToAgentID:   &toID,
		MessageType: "task.assign",
		Payload:     `{"task":"1"}`,
	})
	require.NoError(t, err)
	require.Equal(t, sent.ID, notified.ID)
	require.Equal(t, enums.PriorityNormal, sent.Priority)

	pending, err := bus.GetPending(context.Background(), recipient)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, sent.ID, pending[0].ID)
}

func TestBus_SendByAgentTypeFanOut(t *testing.T) {
	st := dbtest.NewStore(t)
	bus := messages.New(st, nil)
	tenantID := newTestTenant(t, st)

	toType := "reviewer"
	_, err := bus.Send(context.Background(), tenantID, messages.SendInput{
		FromAgentID: ids.NewAgentID(),
		ToAgentType: &toType,
		MessageType: "review.request",
	})
	require.NoError(t, err)

	recipient := testAgent(tenantID, toType)
	pending, err := bus.GetPending(context.Background(), recipient)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestBus_MarkDeliveredIsIdempotent(t *testing.T) {
	st := dbtest.NewStore(t)
	bus := messages.New(st, nil)
	tenantID := newTestTenant(t, st)
	recipient := testAgent(tenantID, "worker")
	toID := recipient.ID

	sent, err := bus.Send(context.Background(), tenantID, messages.SendInput{
		FromAgentID: ids.NewAgentID(),
		ToAgentID:   &toID,
		MessageType: "ping",
	})
	require.NoError(t, err)

	require.NoError(t, bus.MarkDelivered(context.Background(), tenantID, sent.ID))
	require.NoError(t, bus.MarkDelivered(context.Background(), tenantID, sent.ID))

	require.NoError(t, bus.MarkAcknowledged(context.Background(), tenantID, sent.ID))
	require.NoError(t, bus.MarkAcknowledged(context.Background(), tenantID, sent.ID))
}

func TestBus_MarkAcknowledgedBeforeDeliveryIsConflict(t *testing.T) {
	st := dbtest.NewStore(t)
	bus := messages.New(st, nil)
	tenantID := newTestTenant(t, st)
	recipient := testAgent(tenantID, "worker")
	toID := recipient.ID

	sent, err := bus.Send(context.Background(), tenantID, messages.SendInput{
		FromAgentID: ids.NewAgentID(),
		ToAgentID:   &toID,
		MessageType: "ping",
	})
	require.NoError(t, err)

	err = bus.MarkAcknowledged(context.Background(), tenantID, sent.ID)
	require.Error(t, err)
}

func TestBus_ReapExpiredDeletesOnlyExpiredUndelivered(t *testing.T) {
	st := dbtest.NewStore(t)
	bus := messages.New(st, nil)
	tenantID := newTestTenant(t, st)
	recipient := testAgent(tenantID, "worker")
	toID := recipient.ID

	past := time.Now().UTC().Add(-time.Hour)
	expired, err := bus.Send(context.Background(), tenantID, messages.SendInput{
		FromAgentID: ids.NewAgentID(),
		ToAgentID:   &toID,
		MessageType: "stale",
		ExpiresAt:   &past,
	})
	require.NoError(t, err)

	future := time.Now().UTC().Add(time.Hour)
	fresh, err := bus.Send(context.Background(), tenantID, messages.SendInput{
		FromAgentID: ids.NewAgentID(),
		ToAgentID:   &toID,
		MessageType: "fresh",
		ExpiresAt:   &future,
	})
	require.NoError(t, err)

	n, err := bus.ReapExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	pending, err := bus.GetPending(context.Background(), recipient)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, fresh.ID, pending[0].ID)
	require.NotEqual(t, expired.ID, pending[0].ID)
}
