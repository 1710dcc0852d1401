// Package audit defines the append-only action log. Entries are created
// exactly once per recorded event and are never updated or deleted;
// corrections must be modeled as new entries referencing the original.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Action classifies what the subject did. The set is closed and enforced at
// append time so that per-action aggregates always sum to the total.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionRead   Action = "READ"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Actions returns the closed action set in a stable order.
func Actions() []Action {
	return []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
}

// Resource classifies what the action touched.
type Resource string

const (
	ResourceUser       Resource = "User"
	ResourcePost       Resource = "Post"
	ResourceRole       Resource = "Role"
	ResourcePermission Resource = "Permission"
)

// Resources returns the closed resource set in a stable order.
func Resources() []Resource {
	return []Resource{ResourceUser, ResourcePost, ResourceRole, ResourcePermission}
}

// Status records whether the audited action succeeded.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// ErrInvalidEntry indicates an append with a value outside the closed
// action/resource/status sets or with missing subject data.
var ErrInvalidEntry = errors.New("audit: invalid entry")

// Change captures a field-level before/after pair.
type Change struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Entry is a single immutable audit record. ID is assigned by the store and
// is strictly increasing in append order.
type Entry struct {
	ID           int64             `json:"id"`
	SubjectID    string            `json:"userId"`
	SubjectName  string            `json:"userName"`
	Email        string            `json:"email"`
	Action       Action            `json:"action"`
	Resource     Resource          `json:"resource"`
	ResourceID   string            `json:"resourceId,omitempty"`
	ResourceName string            `json:"resourceName,omitempty"`
	Status       Status            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Details      string            `json:"details"`
	Changes      map[string]Change `json:"changes,omitempty"`
}

// Validate enforces the closed action/resource/status sets and required
// subject data. Stores call this before accepting an entry.
func (e Entry) Validate() error {
	switch e.Action {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidEntry, e.Action)
	}
	switch e.Resource {
	case ResourceUser, ResourcePost, ResourceRole, ResourcePermission:
	default:
		return fmt.Errorf("%w: unknown resource %q", ErrInvalidEntry, e.Resource)
	}
	switch e.Status {
	case StatusSuccess, StatusFailure:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEntry, e.Status)
	}
	if e.SubjectID == "" {
		return fmt.Errorf("%w: subject id is required", ErrInvalidEntry)
	}
	return nil
}

// Filter narrows Query results. Zero-valued fields put no constraint on
// their dimension; all provided fields are ANDed.
type Filter struct {
	SubjectID string
	Action    Action
	Resource  Resource
	Status    Status
	From      time.Time // matches Timestamp >= From
	To        time.Time // matches Timestamp <= To
}

func (f Filter) matches(e Entry) bool {
	if f.SubjectID != "" && e.SubjectID != f.SubjectID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}

// Stats aggregates the full log.
type Stats struct {
	TotalLogs    int              `json:"totalLogs"`
	SuccessCount int              `json:"successCount"`
	FailureCount int              `json:"failureCount"`
	ByAction     map[Action]int   `json:"byAction"`
	ByResource   map[Resource]int `json:"byResource"`
}

// Store is the append-only audit log. Implementations must serialize
// appends so ids stay unique and strictly increasing, while reads observe a
// consistent snapshot.
type Store interface {
	// Append assigns the next id, stores the entry and returns it. The
	// timestamp defaults to the current time when zero.
	Append(ctx context.Context, e Entry) (Entry, error)
	// Query returns matching entries sorted by timestamp descending, most
	// recently appended first among equal timestamps.
	Query(ctx context.Context, f Filter) ([]Entry, error)
	// Stats aggregates all entries by status, action and resource.
	Stats(ctx context.Context) (Stats, error)
}
