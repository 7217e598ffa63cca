package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind is the event name subscribers switch on.
type Kind string

const (
	KindLoanRequestCreated      Kind = "book-loan-request.created"
	KindLoanRequestUpdated      Kind = "book-loan-request.updated"
	KindDashboardSummaryUpdated Kind = "dashboard.summary.updated"
	KindActivityLogsUpdated     Kind = "activity.logs.updated"
)

type Entity string

const (
	EntityLoanRequest      Entity = "loan_request"
	EntityDashboardSummary Entity = "dashboard_summary"
	EntityActivityLog      Entity = "activity_log"
)

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// ErrNoRoute means the (entity, action) pair has no entry in the routing table.
var ErrNoRoute = errors.New("no event route")

// Event is a committed state change ready for delivery.
type Event struct {
	ID       string
	Kind     Kind
	Channels []Channel
	Payload  interface{}
	// CampusID limits admin-queue delivery to subscribers in scope. Nil is unscoped.
	CampusID   *uint
	OccurredAt time.Time
}

// Subject carries whatever a route needs to build its channels and payload.
type Subject struct {
	LoanRequest *LoanRequestSnapshot
	Source      string
	ActivityID  uint
	At          time.Time
}

type route struct {
	kind     Kind
	channels func(s Subject) []Channel
	project  func(s Subject) interface{}
	scoped   bool
}

type routeKey struct {
	entity Entity
	action Action
}

var routes = map[routeKey]route{
	{EntityLoanRequest, ActionCreated}: {
		kind: KindLoanRequestCreated,
		channels: func(Subject) []Channel {
			return []Channel{ChannelAdminLoanRequests}
		},
		project: func(s Subject) interface{} { return projectCreated(*s.LoanRequest) },
		scoped:  true,
	},
	{EntityLoanRequest, ActionUpdated}: {
		kind: KindLoanRequestUpdated,
		channels: func(s Subject) []Channel {
			return []Channel{ChannelAdminLoanRequests, UserLoanRequestsChannel(s.LoanRequest.RequesterID)}
		},
		project: func(s Subject) interface{} { return projectUpdated(*s.LoanRequest) },
		scoped:  true,
	},
	{EntityDashboardSummary, ActionUpdated}: {
		kind: KindDashboardSummaryUpdated,
		channels: func(Subject) []Channel {
			return []Channel{ChannelDashboardSummary, ChannelPublicSummary}
		},
		project: func(s Subject) interface{} {
			return DashboardSummaryPayload{Source: s.Source, UpdatedAt: FormatTime(s.At)}
		},
	},
	{EntityActivityLog, ActionCreated}: {
		kind: KindActivityLogsUpdated,
		channels: func(Subject) []Channel {
			return []Channel{ChannelActivityLogs}
		},
		project: func(s Subject) interface{} {
			return ActivityLogsPayload{ActivityID: s.ActivityID, Source: s.Source, UpdatedAt: FormatTime(s.At)}
		},
	},
}

// Build looks up the route for (entity, action) and materialises the event.
func Build(entity Entity, action Action, s Subject) (Event, error) {
	r, ok := routes[routeKey{entity, action}]
	if !ok {
		return Event{}, fmt.Errorf("%w: %s.%s", ErrNoRoute, entity, action)
	}
	if entity == EntityLoanRequest && s.LoanRequest == nil {
		return Event{}, fmt.Errorf("%s.%s: missing loan request snapshot", entity, action)
	}
	if s.At.IsZero() {
		s.At = time.Now()
	}

	e := Event{
		ID:         uuid.NewString(),
		Kind:       r.kind,
		Channels:   r.channels(s),
		Payload:    r.project(s),
		OccurredAt: s.At.UTC(),
	}
	if r.scoped && s.LoanRequest != nil {
		e.CampusID = s.LoanRequest.CampusID
	}
	return e, nil
}

func mustBuild(entity Entity, action Action, s Subject) Event {
	e, err := Build(entity, action, s)
	if err != nil {
		panic(err)
	}
	return e
}

// LoanRequestCreated announces a newly submitted request to the admin queue.
func LoanRequestCreated(s LoanRequestSnapshot, at time.Time) Event {
	return mustBuild(EntityLoanRequest, ActionCreated, Subject{LoanRequest: &s, At: at})
}

// LoanRequestUpdated announces a decision or cancellation to the admin queue and the requester.
func LoanRequestUpdated(s LoanRequestSnapshot, at time.Time) Event {
	return mustBuild(EntityLoanRequest, ActionUpdated, Subject{LoanRequest: &s, At: at})
}

// DashboardSummaryUpdated tells dashboards to refetch counts. source is "<entity>.<action>".
func DashboardSummaryUpdated(source string, at time.Time) Event {
	return mustBuild(EntityDashboardSummary, ActionUpdated, Subject{Source: source, At: at})
}

// ActivityLogsUpdated signals that a new activity row was written.
func ActivityLogsUpdated(activityID uint, source string, at time.Time) Event {
	return mustBuild(EntityActivityLog, ActionCreated, Subject{ActivityID: activityID, Source: source, At: at})
}
