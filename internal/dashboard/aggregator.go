// Package dashboard turns count-affecting mutations into dashboard refresh signals.
package dashboard

import (
	"context"
	"time"

	"libraryhub/internal/events"
)

// Entities whose counts appear on the dashboard
const (
	EntityBook        = "book"
	EntityUser        = "user"
	EntityCategory    = "category"
	EntitySubcategory = "subcategory"
	EntityBookcase    = "bookcase"
	EntityShelf       = "shelf"
	EntityCampus      = "campus"
	EntityRole        = "role"
	EntityPermission  = "permission"
)

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Mutation describes a committed write. Changed lists column names and only
// matters for updates.
type Mutation struct {
	Entity  string
	Action  string
	Changed []string
}

func (m Mutation) Source() string { return m.Entity + "." + m.Action }

type rule struct {
	actions []string
	// fields that make an update count; empty means updates never count
	fields []string
}

var createDelete = rule{actions: []string{ActionCreated, ActionDeleted}}

var rules = map[string]rule{
	EntityBook: {
		actions: []string{ActionCreated, ActionUpdated, ActionDeleted},
		fields:  []string{"type", "is_available", "campus_id", "is_deleted"},
	},
	EntityUser: {
		actions: []string{ActionUpdated},
		fields:  []string{"is_active"},
	},
	EntityCategory:    createDelete,
	EntitySubcategory: createDelete,
	EntityBookcase:    createDelete,
	EntityShelf:       createDelete,
	EntityCampus:      createDelete,
	EntityRole:        createDelete,
	EntityPermission:  createDelete,
}

// Qualifies reports whether m changes any dashboard count.
func Qualifies(m Mutation) bool {
	r, ok := rules[m.Entity]
	if !ok || !contains(r.actions, m.Action) {
		return false
	}
	if m.Action != ActionUpdated {
		return true
	}
	for _, f := range m.Changed {
		if contains(r.fields, f) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Aggregator emits one dashboard.summary.updated per qualifying mutation.
// Bursts are not coalesced.
type Aggregator struct {
	publisher events.Publisher
	now       func() time.Time
}

func NewAggregator(p events.Publisher) *Aggregator {
	return &Aggregator{publisher: p, now: time.Now}
}

// Observe publishes a signal if m qualifies and reports whether it did.
// Call it only after the mutation has committed.
func (a *Aggregator) Observe(ctx context.Context, m Mutation) bool {
	if !Qualifies(m) {
		return false
	}
	a.publisher.Publish(ctx, events.DashboardSummaryUpdated(m.Source(), a.now()))
	return true
}
