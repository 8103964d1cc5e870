package models

// Wire statuses of a per-order sync result.
const (
	SyncResultSynchronized = "Synchronized"
	SyncResultUpdated      = "Updated"
	SyncResultRejected     = "Rejected"
)

// SyncReasonStale rejects a snapshot the server already has a newer version
// of. The device should pull instead of resending it.
const SyncReasonStale = "Stale"

// SyncResult is one element of the sync endpoint response, in the same
// position as the order it answers.
type SyncResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Accepted reports whether the server took the sent snapshot into account,
// either by storing it or because it already held the same version.
func (r SyncResult) Accepted() bool {
	return r.Status == SyncResultSynchronized || r.Status == SyncResultUpdated
}

// StatusChangeRequest is the body of the status endpoint.
type StatusChangeRequest struct {
	NewStatus OrderStatus `json:"newStatus" binding:"required"`
}

// StatusChangeResponse is returned once a status change was stored.
type StatusChangeResponse struct {
	Status         string      `json:"status"`
	WorkflowStatus OrderStatus `json:"workflowStatus"`
}
