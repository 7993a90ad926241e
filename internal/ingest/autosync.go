package ingest

import (
	"context"
	"errors"
	"fmt"

	"graphrag/internal/entity"
	"graphrag/internal/logging"
	"graphrag/internal/types"
)

// Policy controls boundary-triggered ingestion.
type Policy struct {
	Enabled      bool
	Queue        bool // hand operations to the queue instead of running inline
	OnCreate     bool
	OnUpdate     bool
	OnDelete     bool
	FailSilently bool
}

// SyncQueue receives deferred sync operations when queueing is enabled.
// Implementations are supplied by the caller (a job runner, a channel
// worker); the dispatcher never drains the queue itself.
type SyncQueue interface {
	Enqueue(operation string, d *entity.Descriptor) error
}

// Dispatcher routes entity lifecycle events into the coordinator according
// to the auto-sync policy.
type Dispatcher struct {
	coord  *Coordinator
	policy Policy
	queue  SyncQueue
}

// NewDispatcher wires a dispatcher. queue may be nil unless the policy
// enables queueing.
func NewDispatcher(coord *Coordinator, policy Policy, queue SyncQueue) (*Dispatcher, error) {
	if policy.Enabled && policy.Queue && queue == nil {
		return nil, types.NewValidationError("auto_sync", "queue mode enabled but no queue supplied")
	}
	return &Dispatcher{coord: coord, policy: policy, queue: queue}, nil
}

// EntityCreated dispatches a create event.
func (d *Dispatcher) EntityCreated(ctx context.Context, desc *entity.Descriptor) error {
	if !d.policy.Enabled || !d.policy.OnCreate {
		return nil
	}
	return d.dispatch(ctx, "create", desc, func() error {
		_, err := d.coord.Ingest(ctx, desc)
		return err
	})
}

// EntityUpdated dispatches an update event.
func (d *Dispatcher) EntityUpdated(ctx context.Context, desc *entity.Descriptor) error {
	if !d.policy.Enabled || !d.policy.OnUpdate {
		return nil
	}
	return d.dispatch(ctx, "update", desc, func() error {
		_, err := d.coord.Sync(ctx, desc)
		return err
	})
}

// EntityDeleted dispatches a delete event.
func (d *Dispatcher) EntityDeleted(ctx context.Context, desc *entity.Descriptor) error {
	if !d.policy.Enabled || !d.policy.OnDelete {
		return nil
	}
	return d.dispatch(ctx, "delete", desc, func() error {
		_, err := d.coord.Remove(ctx, desc)
		return err
	})
}

// dispatch runs or enqueues one operation. With FailSilently set,
// consistency errors from a completed rollback are logged and swallowed;
// critical inconsistencies are always returned.
func (d *Dispatcher) dispatch(_ context.Context, operation string, desc *entity.Descriptor, run func() error) error {
	if d.policy.Queue {
		if err := d.queue.Enqueue(operation, desc); err != nil {
			return fmt.Errorf("auto-sync enqueue failed: %w", err)
		}
		return nil
	}

	err := run()
	if err == nil {
		return nil
	}

	var critical *types.CriticalConsistencyError
	if errors.As(err, &critical) {
		return err
	}
	if d.policy.FailSilently {
		logging.Ingest("Auto-sync %s swallowed error (fail_silently): %v", operation, err)
		return nil
	}
	return err
}
