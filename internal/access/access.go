// Package access implements CALIBER's single access-control gate (spec C4):
// every read and write routes through Enforcer.Check before it touches the
// store. The rule evaluation order follows spec §4.4 exactly: a matching
// memory_access entry, then its scope qualifier, then (for Collaborative
// region writes) an exclusive lock held by the writer.
//
// This generalizes the teacher's pkg/api/auth.go claims-matching idiom from
// a transport-layer middleware into a core-level gate, since spec §4.4
// requires enforcement "regardless of transport" — something tarsy itself
// only does at the HTTP boundary.
package access

import (
	"context"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
	"github.com/Heyoub/caliber-sub001/internal/store"
)

// Operation is the access direction being checked.
type Operation string

const (
	Read  Operation = "read"
	Write Operation = "write"
)

// Target describes the entity an operation is being attempted against,
// carrying just enough shape for the three §4.4 rules to evaluate.
type Target struct {
	EntityType   enums.EntityType
	TrajectoryID ids.TrajectoryID // the entity's owning trajectory, if any
	RegionID     *ids.RegionID    // set when the entity belongs to a MemoryRegion
}

// Enforcer is the single gate every entity-service method calls before
// touching the store.
type Enforcer struct {
	store *store.Store
}

// New builds an Enforcer backed by the given store, used to resolve
// MemoryRegion membership and Collaborative-region lock state.
func New(s *store.Store) *Enforcer {
	return &Enforcer{store: s}
}

// Check evaluates spec §4.4's three rules against agent for op on target,
// returning a caliberr.PermissionDenied naming the unsatisfied rule on
// failure.
func (e *Enforcer) Check(ctx context.Context, agent models.Agent, op Operation, target Target) error {
	entries := agent.MemoryAccess.Read
	if op == Write {
		entries = agent.MemoryAccess.Write
	}

	entry, ok := matchEntry(entries, target.EntityType)
	if !ok {
		return caliberr.PermissionDenied("memory_access." + string(op) + ".no_matching_entry")
	}

	switch entry.Scope {
	case enums.ScopeAll:
		// Unconditional grant.
	case enums.ScopeOwnTrajectory:
		if agent.CurrentTrajectoryID == nil || *agent.CurrentTrajectoryID != target.TrajectoryID {
			return caliberr.PermissionDenied("memory_access.scope.own_trajectory")
		}
	case enums.ScopeRegion:
		if entry.RegionID == nil || target.RegionID == nil || *entry.RegionID != *target.RegionID {
			return caliberr.PermissionDenied("memory_access.scope.region")
		}
		if err := e.checkRegionMembership(ctx, agent, op, *target.RegionID); err != nil {
			return err
		}
	default:
		return caliberr.PermissionDenied("memory_access.scope.unknown")
	}

	if op == Write && target.RegionID != nil {
		if err := e.checkCollaborativeWriteLock(ctx, agent, *target.RegionID); err != nil {
			return err
		}
	}

	return nil
}

func matchEntry(entries []models.MemoryAccessEntry, entityType enums.EntityType) (models.MemoryAccessEntry, bool) {
	for _, entry := range entries {
		if entry.MemoryType == entityType {
			return entry, true
		}
	}
	return models.MemoryAccessEntry{}, false
}

func (e *Enforcer) checkRegionMembership(ctx context.Context, agent models.Agent, op Operation, regionID ids.RegionID) error {
	region, err := e.store.GetRegion(ctx, agent.TenantID, regionID)
	if err != nil {
		return caliberr.PermissionDenied("memory_access.scope.region.not_found")
	}
	members := region.Readers
	if op == Write {
		members = region.Writers
	}
	for _, m := range members {
		if m == agent.ID {
			return nil
		}
	}
	return caliberr.PermissionDenied("memory_access.scope.region.not_a_member")
}

// checkCollaborativeWriteLock enforces spec §4.4 rule 3: a write to a
// Collaborative region requires an exclusive lock on the region resource,
// currently held by the writing agent.
func (e *Enforcer) checkCollaborativeWriteLock(ctx context.Context, agent models.Agent, regionID ids.RegionID) error {
	region, err := e.store.GetRegion(ctx, agent.TenantID, regionID)
	if err != nil {
		return caliberr.PermissionDenied("collaborative_write.region_not_found")
	}
	if region.RegionType != enums.RegionCollaborative {
		return nil
	}

	lock, held, err := e.store.GetLockByResource(ctx, agent.TenantID, "region", regionID.String())
	if err != nil {
		return caliberr.PermissionDenied("collaborative_write.lock_lookup_failed")
	}
	if !held || lock.Mode != enums.LockExclusive || lock.HolderAgentID != agent.ID {
		return caliberr.PermissionDenied("collaborative_write.exclusive_lock_required")
	}
	return nil
}
