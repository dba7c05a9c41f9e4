// Package entities implements CALIBER's entity services (spec C3): one
// service method family per entity kind, each exposing the
// create/get/update/delete/query contract (plus batch variants honoring
// stop_on_error) on top of internal/store, gated by internal/access before
// any query reaches the database.
//
// The shape — a thin service wrapping a generated/hand-written query layer,
// explicit field validation ahead of the write, sentinel errors mapped from
// the underlying client's not-found case — follows pkg/services/*.go
// (stage_service.go, session_service.go, message_service.go), generalized
// from tarsy's single alert/session domain to CALIBER's full entity set.
package entities

import (
	"context"

	"github.com/Heyoub/caliber-sub001/internal/access"
	"github.com/Heyoub/caliber-sub001/internal/store"
)

// Service is the shared handle every per-entity file's methods hang off.
type Service struct {
	store  *store.Store
	access *access.Enforcer
}

// New builds a Service backed by store and gated by enforcer.
func New(s *store.Store, enforcer *access.Enforcer) *Service {
	return &Service{store: s, access: enforcer}
}

// BatchResult is one item's outcome within a batch operation (spec §4.3
// "batch variants with a stop_on_error flag").
type BatchResult struct {
	Index int
	Error error
}

// runBatch applies fn to each item in order. When stopOnError is true, the
// whole batch runs inside a single store.WithTx and aborts (rolling back)
// at the first error; the returned slice then holds only the results up to
// and including the failure. When false, every item runs independently
// (not all-or-nothing) and every outcome — success or failure — is
// reported, matching spec §4.3 "on stop_on_error=false, the response
// reports per-item outcomes; on true, the batch aborts and the surrounding
// transaction rolls back".
func runBatch[T any](ctx context.Context, s *store.Store, stopOnError bool, items []T, fn func(ctx context.Context, item T) error) ([]BatchResult, error) {
	if stopOnError {
		var results []BatchResult
		err := s.WithTx(ctx, func(txCtx context.Context) error {
			for i, item := range items {
				if err := fn(txCtx, item); err != nil {
					results = append(results, BatchResult{Index: i, Error: err})
					return err
				}
				results = append(results, BatchResult{Index: i})
			}
			return nil
		})
		return results, err
	}

	results := make([]BatchResult, len(items))
	for i, item := range items {
		results[i] = BatchResult{Index: i, Error: fn(ctx, item)}
	}
	return results, nil
}

// touchBestEffort runs fn and swallows its error, used for observational
// side effects that must never fail the surrounding read (spec §4.3 "Note
// get/query increments access_count ... failures to update access counters
// must not fail the read").
func touchBestEffort(fn func() error) {
	_ = fn()
}
