package device

import (
	"context"
	"fmt"

	"github.com/yeremiapane/omnipos/models"
	"github.com/yeremiapane/omnipos/utils"
	"github.com/yeremiapane/omnipos/vclock"
)

// Syncer sends a batch of snapshots to the server and returns one result
// per snapshot, in the same order.
type Syncer interface {
	SyncOrders(ctx context.Context, orders []models.Order) ([]models.SyncResult, error)
}

// FlushReport summarises one flush.
type FlushReport struct {
	Sent         int
	Synchronized int
	Rejected     int
	// Pending counts accepted snapshots that changed locally while the
	// request was in flight; they go out with the next flush.
	Pending      int
}

func (r FlushReport) String() string {
	return fmt.Sprintf("sent=%d synchronized=%d rejected=%d pending=%d", r.Sent, r.Synchronized, r.Rejected, r.Pending)
}

// Flush sends every unsynced snapshot in one request. On transport failure
// the buffer is left exactly as it was.
func (b *Buffer) Flush(ctx context.Context, s Syncer) (FlushReport, error) {
	sent := b.Unsynced()
	if len(sent) == 0 {
		return FlushReport{}, nil
	}

	results, err := s.SyncOrders(ctx, sent)
	if err != nil {
		return FlushReport{}, fmt.Errorf("sync %d orders: %w", len(sent), err)
	}
	return b.ApplyResults(ctx, sent, results)
}

// ApplyResults records the server's answer to sent. A snapshot becomes
// Synchronized only when the server accepted it, or found it stale, and it
// has not changed locally since it was sent.
func (b *Buffer) ApplyResults(ctx context.Context, sent []models.Order, results []models.SyncResult) (FlushReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	report := FlushReport{Sent: len(sent)}
	if len(results) != len(sent) {
		return report, fmt.Errorf("got %d results for %d orders", len(results), len(sent))
	}
	for i, res := range results {
		if res.ID != sent[i].ID {
			return report, fmt.Errorf("result %d answers %q, expected %q", i, res.ID, sent[i].ID)
		}
		cur, ok := b.entries[res.ID]
		if !ok {
			continue
		}
		unchanged := cur.Order.Clock.Compare(sent[i].Clock) == vclock.Equal

		if res.Accepted() || res.Reason == models.SyncReasonStale {
			if !unchanged {
				report.Pending++
				continue
			}
			next := cur.Order.Clone()
			next.SyncStatus = models.SyncSynchronized
			if err := b.install(ctx, Entry{Order: next}); err != nil {
				return report, err
			}
			report.Synchronized++
			continue
		}

		report.Rejected++
		utils.ErrorLogger.WithField("order", res.ID).Errorf("server rejected order: %s", res.Reason)
		if err := b.install(ctx, Entry{Order: cur.Order, LastRejection: res.Reason}); err != nil {
			return report, err
		}
	}
	return report, nil
}
