package models

import (
	"errors"
	"time"
)

// BroadcastSentinel is stored in target_role for tenant-wide notifications.
const BroadcastSentinel = "All"

var ErrAmbiguousTarget = errors.New("notification target must name exactly one of role, user or broadcast")

type TargetKind int

const (
	TargetRole TargetKind = iota + 1
	TargetUser
	TargetBroadcast
)

// Target addresses a notification. Build it with RoleTarget, UserTarget,
// BroadcastTarget or NewTarget; the zero value addresses nobody.
type Target struct {
	kind   TargetKind
	role   Role
	userID string
}

func RoleTarget(r Role) Target { return Target{kind: TargetRole, role: r} }
func UserTarget(id string) Target { return Target{kind: TargetUser, userID: id} }
func BroadcastTarget() Target { return Target{kind: TargetBroadcast} }
func (t Target) Kind() TargetKind { return t.kind }
func (t Target) Role() Role { return t.role }
func (t Target) UserID() string { return t.userID }
func (t Target) IsZero() bool { return t.kind == 0 }

// NewTarget builds a target from loosely typed input, e.g. a request body.
// Exactly one of role, userID or broadcast must be set.
func NewTarget(role, userID string, broadcast bool) (Target, error) {
	set := 0
	if role != "" {
		set++
	}
	if userID != "" {
		set++
	}
	if broadcast {
		set++
	}
	if set != 1 {
		return Target{}, ErrAmbiguousTarget
	}

	switch {
	case broadcast:
		return BroadcastTarget(), nil
	case userID != "":
		return UserTarget(userID), nil
	}
	if role == BroadcastSentinel {
		return BroadcastTarget(), nil
	}
	r, err := ParseRole(role)
	if err != nil {
		return Target{}, err
	}
	return RoleTarget(r), nil
}

// Matches reports whether a principal of the same tenant should see a
// notification addressed to t.
func (t Target) Matches(p Principal) bool {
	switch t.kind {
	case TargetBroadcast:
		return true
	case TargetRole:
		return t.role == p.Role
	case TargetUser:
		return t.userID != "" && t.userID == p.Subject
	}
	return false
}

func (t Target) String() string {
	switch t.kind {
	case TargetBroadcast:
		return BroadcastSentinel
	case TargetRole:
		return "role:" + string(t.role)
	case TargetUser:
		return "user:" + t.userID
	}
	return "none"
}

type Notification struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TenantID     string    `gorm:"type:varchar(64);not null;index:idx_notifications_tenant_created,priority:1" json:"tenantId"`
	TargetRole   string    `gorm:"type:varchar(32);index" json:"targetRole,omitempty"`
	TargetUserID string    `gorm:"type:varchar(64);index" json:"targetUserId,omitempty"`
	Message      string    `gorm:"type:text;not null" json:"message"`
	Type         string    `gorm:"type:varchar(32);not null;default:'General'" json:"type"`
	OrderID      *string   `gorm:"type:varchar(36)" json:"orderId,omitempty"`
	IsRead       bool      `gorm:"not null;default:false" json:"isRead"`
	CreatedAt    time.Time `gorm:"not null;index:idx_notifications_tenant_created,priority:2" json:"createdAt"`
}

// Target rebuilds the tagged variant from the stored columns.
func (n Notification) Target() Target {
	switch {
	case n.TargetRole == BroadcastSentinel:
		return BroadcastTarget()
	case n.TargetUserID != "":
		return UserTarget(n.TargetUserID)
	case n.TargetRole != "":
		return RoleTarget(Role(n.TargetRole))
	}
	return Target{}
}

// SetTarget writes the stored columns for t.
func (n *Notification) SetTarget(t Target) {
	n.TargetRole, n.TargetUserID = "", ""
	switch t.kind {
	case TargetBroadcast:
		n.TargetRole = BroadcastSentinel
	case TargetRole:
		n.TargetRole = string(t.role)
	case TargetUser:
		n.TargetUserID = t.userID
	}
}
