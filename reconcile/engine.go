// Package reconcile merges order snapshots sent by devices into the ledger.
//
// Each incoming snapshot is compared with the stored one by vector clock.
// A newer snapshot replaces the mutable fields, an older one is rejected as
// stale, and concurrent snapshots are settled by last write wins on the
// modification time with both clocks merged. Status changes carried by a
// snapshot must follow the order workflow, otherwise nothing is written.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/omnipos/ledger"
	"github.com/yeremiapane/omnipos/models"
	"github.com/yeremiapane/omnipos/utils"
	"github.com/yeremiapane/omnipos/vclock"
	"github.com/yeremiapane/omnipos/workflow"
)

// Result is the kind of outcome for one order.
type Result int

const (
	Created Result = iota + 1
	Updated
	Rejected
)

func (r Result) String() string {
	switch r {
	case Created:
		return "Created"
	case Updated:
		return "Updated"
	case Rejected:
		return "Rejected"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// Outcome reports what happened to one incoming order. Order holds the
// stored state for accepted orders; Err is set for rejections.
type Outcome struct {
	OrderID string
	Result  Result
	Reason  Reason
	Order   models.Order
	Err     error
}

// Wire converts the outcome to its sync response element.
func (o Outcome) Wire() models.SyncResult {
	switch o.Result {
	case Created:
		return models.SyncResult{ID: o.OrderID, Status: models.SyncResultSynchronized}
	case Updated:
		return models.SyncResult{ID: o.OrderID, Status: models.SyncResultUpdated}
	}
	reason := o.Reason
	if reason == ReasonNone {
		reason = ReasonInternal
	}
	return models.SyncResult{ID: o.OrderID, Status: models.SyncResultRejected, Reason: string(reason)}
}

// EventSink receives the workflow events of committed changes.
type EventSink interface {
	HandleEvents(ctx context.Context, events []workflow.Event) error
}

type Engine struct {
	Ledger *ledger.Ledger
	Sink   EventSink
	// NodeID is the clock key the server ticks for its own status changes.
	NodeID string
	Now    func() time.Time
}

func NewEngine(l *ledger.Ledger, sink EventSink, nodeID string) *Engine {
	if nodeID == "" {
		nodeID = "server"
	}
	return &Engine{
		Ledger: l,
		Sink:   sink,
		NodeID: nodeID,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile merges one incoming snapshot on behalf of p.
func (e *Engine) Reconcile(ctx context.Context, p models.Principal, incoming models.Order) Outcome {
	out := e.reconcile(ctx, p, incoming)

	fields := logrus.Fields{
		"tenant": p.TenantID,
		"order":  out.OrderID,
		"result": out.Result.String(),
	}
	if out.Result == Rejected {
		fields["reason"] = string(out.Reason)
		if out.Reason == ReasonInternal {
			utils.ErrorLogger.WithFields(fields).Errorf("reconcile failed: %v", out.Err)
			return out
		}
	}
	utils.InfoLogger.WithFields(fields).Info("order reconciled")
	return out
}

// ReconcileBatch reconciles every order independently and in input order.
// The i-th outcome always answers the i-th order.
func (e *Engine) ReconcileBatch(ctx context.Context, p models.Principal, orders []models.Order) []Outcome {
	outcomes := make([]Outcome, len(orders))
	for i, o := range orders {
		outcomes[i] = e.Reconcile(ctx, p, o)
	}
	return outcomes
}

func (e *Engine) reconcile(ctx context.Context, p models.Principal, incoming models.Order) Outcome {
	if incoming.TenantID == "" || incoming.TenantID != p.TenantID {
		return reject(incoming.ID, ErrTenantMismatch)
	}
	if err := validate(incoming); err != nil {
		return reject(incoming.ID, err)
	}

	now := e.Now()
	var (
		events []workflow.Event
		result Result
	)
	stored, _, err := e.Ledger.Mutate(ctx, p.TenantID, incoming.ID, func(current *models.Order) (models.Order, ledger.Change, error) {
		events = nil
		if current == nil {
			next, evs, err := create(incoming, now)
			if err != nil {
				return models.Order{}, ledger.NoChange, err
			}
			events, result = evs, Created
			return next, ledger.Insert, nil
		}

		result = Updated
		switch incoming.Clock.Compare(current.Clock) {
		case vclock.Before:
			return models.Order{}, ledger.NoChange, ErrStale
		case vclock.Equal:
			return *current, ledger.NoChange, nil
		case vclock.After:
			next, evs, err := overwrite(*current, incoming, now)
			if err != nil {
				return models.Order{}, ledger.NoChange, err
			}
			events = evs
			return next, ledger.Update, nil
		default:
			if incoming.ModifiedAt().After(current.ModifiedAt()) {
				next, evs, err := overwrite(*current, incoming, now)
				if err != nil {
					return models.Order{}, ledger.NoChange, err
				}
				events = evs
				return next, ledger.Update, nil
			}
			next := current.Clone()
			next.Clock = current.Clock.Merge(incoming.Clock)
			return next, ledger.Update, nil
		}
	})
	if err != nil {
		return reject(incoming.ID, err)
	}

	e.publish(ctx, events)
	return Outcome{OrderID: incoming.ID, Result: result, Order: stored}
}

// Transition is the status change path used by staff screens. It moves the
// order by one workflow step and ticks the server's own clock entry, so
// every device copy that has not seen the change becomes stale or
// concurrent.
func (e *Engine) Transition(ctx context.Context, p models.Principal, orderID string, to models.OrderStatus) (models.Order, error) {
	now := e.Now()
	var events []workflow.Event
	stored, _, err := e.Ledger.Mutate(ctx, p.TenantID, orderID, func(current *models.Order) (models.Order, ledger.Change, error) {
		if current == nil {
			return models.Order{}, ledger.NoChange, ledger.ErrNotFound
		}
		next, evs, err := workflow.Apply(*current, to, now)
		if err != nil {
			return models.Order{}, ledger.NoChange, err
		}
		next.Clock = current.Clock.Tick(e.NodeID)
		next.UpdatedAt = now
		events = evs
		return next, ledger.Update, nil
	})
	if err != nil {
		return models.Order{}, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"tenant": p.TenantID,
		"order":  orderID,
		"status": to,
		"by":     p.Subject,
	}).Info("order status changed")
	e.publish(ctx, events)
	return stored, nil
}

func (e *Engine) publish(ctx context.Context, events []workflow.Event) {
	if len(events) == 0 || e.Sink == nil {
		return
	}
	if err := e.Sink.HandleEvents(ctx, events); err != nil {
		utils.ErrorLogger.WithError(err).Errorf("deliver %d workflow events", len(events))
	}
}

func reject(id string, err error) Outcome {
	return Outcome{OrderID: id, Result: Rejected, Reason: ReasonFor(err), Err: err}
}

// create walks a new order from Placed to its sent status, so an order that
// went through the kitchen while offline still notifies like one that
// didn't. The first tick of the clock is the creation itself; every step
// after Placed needs a tick of its own.
func create(incoming models.Order, now time.Time) (models.Order, []workflow.Event, error) {
	base := incoming.Clone()
	base.Status = models.StatusPlaced
	var budget uint64
	if n := incoming.Clock.Since(nil); n > 0 {
		budget = n - 1
	}
	next, events, err := workflow.ApplySteps(base, incoming.Status, now, budget)
	if err != nil {
		return models.Order{}, nil, err
	}
	if next.Clock == nil {
		next.Clock = vclock.Clock{}
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = next.CreatedAt
	}
	next.SyncStatus = models.SyncSynchronized
	return next, events, nil
}

// overwrite takes the mutable fields of incoming on top of current. Each
// status step needs a mutation in incoming's clock that current has not
// seen.
func overwrite(current, incoming models.Order, now time.Time) (models.Order, []workflow.Event, error) {
	next, events, err := workflow.ApplySteps(current, incoming.Status, now, incoming.Clock.Since(current.Clock))
	if err != nil {
		return models.Order{}, nil, err
	}

	src := incoming.Clone()
	next.Subtotal = src.Subtotal
	next.Discount = src.Discount
	next.DiscountType = src.DiscountType
	next.DiscountReason = src.DiscountReason
	next.ServiceCharge = src.ServiceCharge
	next.FinalTotal = src.FinalTotal
	next.Metadata = src.Metadata
	next.PendingAmendments = src.PendingAmendments
	if src.PaidAt != nil {
		next.PaidAt = src.PaidAt
	}
	next.UpdatedAt = src.ModifiedAt()
	next.Clock = current.Clock.Merge(src.Clock)
	next.SyncStatus = models.SyncSynchronized
	return next, events, nil
}
