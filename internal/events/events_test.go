package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"libraryhub/internal/config"
	"libraryhub/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedAt = time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("ICT", 7*3600))

func uintPtr(v uint) *uint { return &v }

func TestSelectTransport(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.BroadcastConfig
		want TransportName
	}{
		{"empty defaults to websocket", config.BroadcastConfig{}, TransportWebsocket},
		{"websocket", config.BroadcastConfig{Driver: "websocket"}, TransportWebsocket},
		{"ws alias", config.BroadcastConfig{Driver: "WS"}, TransportWebsocket},
		{"redis with address", config.BroadcastConfig{Driver: "redis", RedisAddr: "localhost:6379"}, TransportRedis},
		{"redis without address", config.BroadcastConfig{Driver: "redis"}, TransportLog},
		{"log", config.BroadcastConfig{Driver: "log"}, TransportLog},
		{"null", config.BroadcastConfig{Driver: "null"}, TransportNull},
		{"none alias", config.BroadcastConfig{Driver: "none"}, TransportNull},
		{"unknown", config.BroadcastConfig{Driver: "pusher"}, TransportLog},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectTransport(tt.cfg))
		})
	}
}

func TestUserLoanRequestsChannel(t *testing.T) {
	ch := UserLoanRequestsChannel(42)
	assert.Equal(t, "private:book-loan-requests.user.42", ch.String())

	id, ok := ParseUserLoanRequestsChannel(ch)
	require.True(t, ok)
	assert.Equal(t, uint(42), id)

	for _, bad := range []Channel{"private:book-loan-requests.user.", "private:book-loan-requests.user.x", "private:book-loan-requests.user.0", ChannelAdminLoanRequests} {
		_, ok := ParseUserLoanRequestsChannel(bad)
		assert.False(t, ok, bad)
	}

	assert.True(t, ChannelPublicSummary.IsPublic())
	assert.False(t, ChannelDashboardSummary.IsPublic())
}

func TestOptional_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Optional[string] `json:"a"`
		B Optional[string] `json:"b"`
		C Optional[uint]   `json:"c"`
	}{A: Some("x"), C: FromPtr(uintPtr(9))})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"x","b":null,"c":9}`, string(b))

	var got struct {
		A Optional[string] `json:"a"`
		B Optional[string] `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"y","b":null}`), &got))
	v, ok := got.A.Get()
	assert.True(t, ok)
	assert.Equal(t, "y", v)
	assert.False(t, got.B.IsSome())
}

func snapshot() LoanRequestSnapshot {
	return SnapshotLoanRequest(&model.LoanRequest{
		ID:          5,
		BookID:      10,
		Book:        &model.Book{ID: 10, Title: "Dune"},
		RequesterID: 7,
		Requester:   &model.User{ID: 7, Name: "Ana"},
		CampusID:    uintPtr(2),
		Status:      model.LoanRequestPending,
		CreatedAt:   fixedAt,
	})
}

func TestLoanRequestCreated(t *testing.T) {
	e := LoanRequestCreated(snapshot(), fixedAt)

	assert.Equal(t, KindLoanRequestCreated, e.Kind)
	assert.Equal(t, []Channel{ChannelAdminLoanRequests}, e.Channels)
	assert.NotEmpty(t, e.ID)
	require.NotNil(t, e.CampusID)
	assert.Equal(t, uint(2), *e.CampusID)

	b, err := json.Marshal(e.Payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": 5, "book_id": 10, "book_title": "Dune",
		"requester_id": 7, "requester_name": "Ana",
		"status": "pending", "created_at": "2024-05-06T00:08:09Z"
	}`, string(b))
}

func TestLoanRequestUpdated(t *testing.T) {
	decided := fixedAt.Add(time.Hour)

	t.Run("approved", func(t *testing.T) {
		s := SnapshotLoanRequest(&model.LoanRequest{
			ID: 5, BookID: 10, Book: &model.Book{Title: "Dune"},
			RequesterID: 7, Requester: &model.User{Name: "Ana"},
			ApproverID: uintPtr(3), Approver: &model.User{Name: "Bo"},
			Status: model.LoanRequestApproved, DecidedAt: &decided,
		})
		e := LoanRequestUpdated(s, decided)

		assert.Equal(t, KindLoanRequestUpdated, e.Kind)
		assert.Equal(t, []Channel{ChannelAdminLoanRequests, "private:book-loan-requests.user.7"}, e.Channels)

		b, err := json.Marshal(e.Payload)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"id": 5, "book_id": 10, "book_title": "Dune",
			"requester_id": 7, "requester_name": "Ana",
			"approver_id": 3, "approver_name": "Bo",
			"status": "approved", "decided_at": "2024-05-06T01:08:09Z"
		}`, string(b))
	})

	t.Run("self cancel with missing book", func(t *testing.T) {
		s := SnapshotLoanRequest(&model.LoanRequest{
			ID: 6, BookID: 11, RequesterID: 7, Requester: &model.User{Name: "Ana"},
			Status: model.LoanRequestRejected, DecidedAt: &decided,
		})
		b, err := json.Marshal(LoanRequestUpdated(s, decided).Payload)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"id": 6, "book_id": 11, "book_title": null,
			"requester_id": 7, "requester_name": "Ana",
			"approver_id": null, "approver_name": null,
			"status": "rejected", "decided_at": "2024-05-06T01:08:09Z"
		}`, string(b))
	})
}

func TestSignals(t *testing.T) {
	d := DashboardSummaryUpdated("book.updated", fixedAt)
	assert.Equal(t, KindDashboardSummaryUpdated, d.Kind)
	assert.ElementsMatch(t, []Channel{ChannelDashboardSummary, ChannelPublicSummary}, d.Channels)
	assert.Nil(t, d.CampusID)
	b, _ := json.Marshal(d.Payload)
	assert.JSONEq(t, `{"source":"book.updated","updated_at":"2024-05-06T00:08:09Z"}`, string(b))

	a := ActivityLogsUpdated(99, "book-loan-request.approved", fixedAt)
	assert.Equal(t, KindActivityLogsUpdated, a.Kind)
	assert.Equal(t, []Channel{ChannelActivityLogs}, a.Channels)
	b, _ = json.Marshal(a.Payload)
	assert.JSONEq(t, `{"activity_id":99,"source":"book-loan-request.approved","updated_at":"2024-05-06T00:08:09Z"}`, string(b))
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(EntityActivityLog, ActionUpdated, Subject{})
	assert.ErrorIs(t, err, ErrNoRoute)

	_, err = Build(EntityLoanRequest, ActionCreated, Subject{})
	assert.Error(t, err)
}

type failingTransport struct{ calls int }

func (f *failingTransport) Name() TransportName { return "failing" }

func (f *failingTransport) Deliver(context.Context, Event) error {
	f.calls++
	return errors.New("socket closed")
}

func TestDispatcher_SwallowsDeliveryErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ft := &failingTransport{}
	d := NewDispatcher(ft, logger)

	d.Publish(context.Background(),
		DashboardSummaryUpdated("book.created", fixedAt),
		ActivityLogsUpdated(1, "loan.returned", fixedAt),
		Event{Kind: KindActivityLogsUpdated}, // no channels, skipped
	)

	assert.Equal(t, 2, ft.calls)
	assert.Contains(t, buf.String(), "event delivery failed")
	assert.Contains(t, buf.String(), "socket closed")
}

func TestDispatcher_DefaultsToLog(t *testing.T) {
	var buf bytes.Buffer
	d := NewDispatcher(nil, slog.New(slog.NewTextHandler(&buf, nil)))
	assert.Equal(t, TransportLog, d.Transport())

	d.Dispatch(context.Background(), KindDashboardSummaryUpdated, []Channel{ChannelPublicSummary},
		DashboardSummaryPayload{Source: "campus.created", UpdatedAt: FormatTime(fixedAt)})
	assert.Contains(t, buf.String(), "dashboard.summary.updated")
}

func TestEnvelopeRoundTrip(t *testing.T) {
	e := LoanRequestCreated(snapshot(), fixedAt)
	env := NewEnvelope(e, e.Channels)
	env.CampusID = e.CampusID

	b, err := Encode(env)
	require.NoError(t, err)

	got, err := DecodeEvent(b)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.Kind, got.Kind)
	assert.Equal(t, e.Channels, got.Channels)
	assert.Equal(t, e.CampusID, got.CampusID)
	assert.True(t, e.OccurredAt.Equal(got.OccurredAt))

	want, _ := json.Marshal(e.Payload)
	have, _ := json.Marshal(got.Payload)
	assert.JSONEq(t, string(want), string(have))

	_, err = DecodeEvent([]byte(`{"id":"x"}`))
	assert.Error(t, err)
}
