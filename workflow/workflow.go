// Package workflow holds the order status state machine:
//
//	Placed -> InKitchen -> Ready -> Served -> Paid
//
// plus Cancelled from any state that is not Paid or Cancelled. Paid and
// Cancelled are terminal. Skipped states are never inferred: a caller that
// wants to go from Placed to Ready has to request InKitchen first.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/yeremiapane/omnipos/models"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError carries the attempted edge for diagnostics.
type TransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

var sequence = []models.OrderStatus{
	models.StatusPlaced,
	models.StatusInKitchen,
	models.StatusReady,
	models.StatusServed,
	models.StatusPaid,
}

func position(s models.OrderStatus) int {
	for i, st := range sequence {
		if st == s {
			return i
		}
	}
	return -1
}

// Terminal reports whether no transition leaves s.
func Terminal(s models.OrderStatus) bool {
	return s == models.StatusPaid || s == models.StatusCancelled
}

// Next returns the forward-adjacent state of s, if any.
func Next(s models.OrderStatus) (models.OrderStatus, bool) {
	i := position(s)
	if i < 0 || i+1 >= len(sequence) {
		return "", false
	}
	return sequence[i+1], true
}

// Validate accepts only the forward-adjacent edge or the cancel edge.
func Validate(from, to models.OrderStatus) error {
	if !from.Valid() || !to.Valid() || Terminal(from) {
		return &TransitionError{From: from, To: to}
	}
	if to == models.StatusCancelled {
		return nil
	}
	if next, ok := Next(from); ok && next == to {
		return nil
	}
	return &TransitionError{From: from, To: to}
}

// Path returns the chain of single transitions leading from one state to
// another, each of which passes Validate. It is empty when from == to.
// Reconciliation uses it for snapshots where a device stepped through
// several states while offline.
func Path(from, to models.OrderStatus) ([]models.OrderStatus, error) {
	if from == to {
		if !from.Valid() {
			return nil, &TransitionError{From: from, To: to}
		}
		return nil, nil
	}
	if to == models.StatusCancelled {
		if err := Validate(from, to); err != nil {
			return nil, err
		}
		return []models.OrderStatus{to}, nil
	}

	i, j := position(from), position(to)
	if i < 0 || j < 0 || j <= i {
		return nil, &TransitionError{From: from, To: to}
	}
	return append([]models.OrderStatus(nil), sequence[i+1:j+1]...), nil
}

// Event is emitted for transitions staff need to hear about.
type Event struct {
	TenantID     string
	OrderID      string
	TableID      *string
	CustomerName string
	From         models.OrderStatus
	To           models.OrderStatus
	At           time.Time
}

// Emits reports whether entering s produces an Event.
func Emits(s models.OrderStatus) bool {
	switch s {
	case models.StatusInKitchen, models.StatusReady, models.StatusCancelled:
		return true
	}
	return false
}

// Apply performs a single requested transition and returns the new snapshot.
// The input order is left untouched.
func Apply(o models.Order, to models.OrderStatus, at time.Time) (models.Order, []Event, error) {
	if err := Validate(o.Status, to); err != nil {
		return o, nil, err
	}
	return advance(o, []models.OrderStatus{to}, at), eventsFor(o, []models.OrderStatus{to}, at), nil
}

// ApplySteps moves o along Path(o.Status, to), emitting an event for every
// step that emits one. At most max steps are taken: a longer path than the
// mutations the caller can account for would skip states nobody applied,
// so it fails with a *TransitionError.
func ApplySteps(o models.Order, to models.OrderStatus, at time.Time, max uint64) (models.Order, []Event, error) {
	steps, err := Path(o.Status, to)
	if err != nil {
		return o, nil, err
	}
	if uint64(len(steps)) > max {
		return o, nil, &TransitionError{From: o.Status, To: to}
	}
	return advance(o, steps, at), eventsFor(o, steps, at), nil
}

func advance(o models.Order, steps []models.OrderStatus, at time.Time) models.Order {
	next := o.Clone()
	if len(steps) == 0 {
		return next
	}
	next.Status = steps[len(steps)-1]
	if next.Status == models.StatusPaid && next.PaidAt == nil {
		paid := at
		next.PaidAt = &paid
	}
	return next
}

func eventsFor(o models.Order, steps []models.OrderStatus, at time.Time) []Event {
	var events []Event
	from := o.Status
	for _, to := range steps {
		if Emits(to) {
			events = append(events, Event{
				TenantID:     o.TenantID,
				OrderID:      o.ID,
				TableID:      o.TableID,
				CustomerName: o.CustomerName,
				From:         from,
				To:           to,
				At:           at,
			})
		}
		from = to
	}
	return events
}
