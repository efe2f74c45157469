package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-guestlist/internal/application/guestlist"
	"github.com/go-guestlist/internal/application/roster"
	"github.com/go-guestlist/internal/domain"
	jwtinfra "github.com/go-guestlist/internal/infrastructure/jwt"
	"github.com/go-guestlist/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockGuestlistSvc struct{ mock.Mock }

func (m *mockGuestlistSvc) Create(ctx context.Context, actor domain.Actor, eventID string, req domain.CreateGuestRequest) (*domain.Transition, error) {
	args := m.Called(ctx, actor, eventID, req)
	if t, _ := args.Get(0).(*domain.Transition); t != nil {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGuestlistSvc) Approve(ctx context.Context, actor domain.Actor, eventID, guestID string) (*domain.Transition, error) {
	args := m.Called(ctx, actor, eventID, guestID)
	if t, _ := args.Get(0).(*domain.Transition); t != nil {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGuestlistSvc) CheckIn(ctx context.Context, actor domain.Actor, eventID, guestID string) (*domain.Transition, error) {
	args := m.Called(ctx, actor, eventID, guestID)
	if t, _ := args.Get(0).(*domain.Transition); t != nil {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGuestlistSvc) Remove(ctx context.Context, actor domain.Actor, eventID, guestID string, confirmed bool) (*domain.Guest, error) {
	args := m.Called(ctx, actor, eventID, guestID, confirmed)
	if g, _ := args.Get(0).(*domain.Guest); g != nil {
		return g, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGuestlistSvc) Request(ctx context.Context, actor domain.Actor, eventID string) (*domain.Transition, error) {
	args := m.Called(ctx, actor, eventID)
	if t, _ := args.Get(0).(*domain.Transition); t != nil {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockExporter struct{ mock.Mock }

func (m *mockExporter) Export(ctx context.Context, eventID string) (*guestlist.Export, error) {
	args := m.Called(ctx, eventID)
	if e, _ := args.Get(0).(*guestlist.Export); e != nil {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

// fakeRoster replays canned snapshots.
type fakeRoster struct {
	mu      sync.Mutex
	snaps   []roster.Snapshot
	filter  domain.GuestStatus
	results []domain.Guest
	queries []string
	closed  bool
	live    chan roster.Snapshot
}

func (f *fakeRoster) Observe(ctx context.Context, eventID string) (<-chan roster.Snapshot, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event id is required: %w", domain.ErrBadRequest)
	}
	if f.live != nil {
		return f.live, nil
	}
	out := make(chan roster.Snapshot, len(f.snaps))
	for _, s := range f.snaps {
		s.EventID = eventID
		out <- s
	}
	close(out)
	return out, nil
}

func (f *fakeRoster) SetStatusFilter(s domain.GuestStatus) error {
	if !s.Valid() {
		return fmt.Errorf("unknown status %q: %w", s, domain.ErrBadRequest)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = s
	return nil
}

func (f *fakeRoster) Search(q string) []domain.Guest {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.results
}

func (f *fakeRoster) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// --- helpers ---

var host = domain.Actor{ID: "host1", Username: "host", DisplayName: "Hosty McHost"}

// withHost injects verified claims for the host actor.
func withHost(r *http.Request) *http.Request {
	claims := &jwtinfra.Claims{UserID: host.ID, Username: host.Username, DisplayName: host.DisplayName}
	return r.WithContext(context.WithValue(r.Context(), middleware.ClaimsKey, claims))
}

// withParams injects chi URL params as key/value pairs.
func withParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonReq(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	if body == nil {
		return httptest.NewRequest(method, target, nil)
	}
	b, err := json.Marshal(body)
	require.NoError(t, err)
	return httptest.NewRequest(method, target, bytes.NewReader(b))
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func newGuestHandler(svc *mockGuestlistSvc, exp *mockExporter, r *fakeRoster) *GuestHandler {
	return NewGuestHandler(svc, exp, func() RosterView { return r })
}

// --- Create tests ---

func TestCreate_MissingClaims(t *testing.T) {
	h := newGuestHandler(&mockGuestlistSvc{}, &mockExporter{}, &fakeRoster{})
	rr := httptest.NewRecorder()
	h.Create(rr, jsonReq(t, http.MethodPost, "/v1/events/e1/guests", domain.CreateGuestRequest{Username: "ann"}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreate_InvalidBody(t *testing.T) {
	h := newGuestHandler(&mockGuestlistSvc{}, &mockExporter{}, &fakeRoster{})
	r := withHost(httptest.NewRequest(http.MethodPost, "/v1/events/e1/guests", bytes.NewBufferString("not-json")))
	rr := httptest.NewRecorder()
	h.Create(rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreate_ConflictsCarryCodes(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{domain.ErrDuplicateInvite, "duplicate_invite"},
		{domain.ErrAlreadyJoined, "already_joined"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			svc := &mockGuestlistSvc{}
			svc.On("Create", mock.Anything, host, "e1", mock.Anything).Return(nil, tc.err)
			h := newGuestHandler(svc, &mockExporter{}, &fakeRoster{})
			r := withParams(withHost(jsonReq(t, http.MethodPost, "/v1/events/e1/guests", domain.CreateGuestRequest{Username: "ann"})), "eventID", "e1")
			rr := httptest.NewRecorder()
			h.Create(rr, r)
			assert.Equal(t, http.StatusConflict, rr.Code)
			assert.Equal(t, tc.code, decode[MessageEnvelope](t, rr).ErrorCode)
			svc.AssertExpectations(t)
		})
	}
}

func TestCreate_TransportFailureIsGeneric(t *testing.T) {
	svc := &mockGuestlistSvc{}
	svc.On("Create", mock.Anything, host, "e1", mock.Anything).
		Return(nil, fmt.Errorf("%w: write", domain.ErrUnableToAddGuest))
	h := newGuestHandler(svc, &mockExporter{}, &fakeRoster{})
	r := withParams(withHost(jsonReq(t, http.MethodPost, "/v1/events/e1/guests", domain.CreateGuestRequest{Username: "ann"})), "eventID", "e1")
	rr := httptest.NewRecorder()
	h.Create(rr, r)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	env := decode[MessageEnvelope](t, rr)
	assert.Equal(t, "unable_to_add_guest", env.ErrorCode)
	assert.NotContains(t, env.Error, "write")
}

func TestCreate_MissingUniversity(t *testing.T) {
	svc := &mockGuestlistSvc{}
	svc.On("Create", mock.Anything, host, "e1", mock.Anything).Return(nil, domain.ErrMissingUniversity)
	h := newGuestHandler(svc, &mockExporter{}, &fakeRoster{})
	r := withParams(withHost(jsonReq(t, http.MethodPost, "/v1/events/e1/guests", domain.CreateGuestRequest{Name: "Ann"})), "eventID", "e1")
	rr := httptest.NewRecorder()
	h.Create(rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "missing_university", decode[MessageEnvelope](t, rr).ErrorCode)
}

func TestCreate_HappyPath(t *testing.T) {
	g := &domain.Guest{ID: "u1", EventID: "e1", Name: "Ann", Status: domain.StatusInvited}
	svc := &mockGuestlistSvc{}
	svc.On("Create", mock.Anything, host, "e1", domain.CreateGuestRequest{Username: "ann"}).
		Return(&domain.Transition{Guest: g, To: domain.StatusInvited, Applied: true, Notified: true}, nil)
	h := newGuestHandler(svc, &mockExporter{}, &fakeRoster{})
	r := withParams(withHost(jsonReq(t, http.MethodPost, "/v1/events/e1/guests", domain.CreateGuestRequest{Username: "ann"})), "eventID", "e1")
	rr := httptest.NewRecorder()
	h.Create(rr, r)
	assert.Equal(t, http.StatusCreated, rr.Code)
	env := decode[TransitionEnvelope](t, rr)
	require.NotNil(t, env.Guest)
	assert.Equal(t, "u1", env.Guest.ID)
	assert.True(t, env.Transition.Notified)
	svc.AssertExpectations(t)
}

// --- Request tests ---

func TestRequest_Created(t *testing.T) {
	g := &domain.Guest{ID: host.ID, EventID: "e1", Status: domain.StatusRequested}
	svc := &mockGuestlistSvc{}
	svc.On("Request", mock.Anything, host, "e1").Return(&domain.Transition{Guest: g, To: domain.StatusRequested, Applied: true}, nil)
	h := newGuestHandler(svc, &mockExporter{}, &fakeRoster{})
	r := withParams(withHost(httptest.NewRequest(http.MethodPost, "/v1/events/e1/guests/requests", nil)), "eventID", "e1")
	rr := httptest.NewRecorder()
	h.Request(rr, r)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, domain.StatusRequested, decode[TransitionEnvelope](t, rr).Guest.Status)
}

func TestRequest_PendingIsOK(t *testing.T) {
	g := &domain.Guest{ID: host.ID, EventID: "e1", Status: domain.StatusRequested}
	svc := &mockGuestlistSvc{}
	svc.On("Request", mock.Anything, host, "e1").Return(&domain.Transition{Guest: g, From: domain.StatusRequested, To: domain.StatusRequested}, nil)
	h := newGuestHandler(svc, &mockExporter{}, &fakeRoster{})
	r := withParams(withHost(httptest.NewRequest(http.MethodPost, "/v1/events/e1/guests/requests", nil)), "eventID", "e1")
	rr := httptest.NewRecorder()
	h.Request(rr, r)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequest_AlreadyInvited(t *testing.T) {
	svc := &mockGuestlistSvc{}
	svc.On("Request", mock.Anything, host, "e1").Return(nil, domain.ErrDuplicateInvite)
	h := newGuestHandler(svc, &mockExporter{}, &fakeRoster{})
	r := withParams(withHost(httptest.NewRequest(http.MethodPost, "/v1/events/e1/guests/requests", nil)), "eventID", "e1")
	rr := httptest.NewRecorder()
	h.Request(rr, r)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "duplicate_invite", decode[MessageEnvelope](t, rr).ErrorCode)
}

func TestCheckIn_NotAPlanner(t *testing.T) {
	svc := &mockGuestlistSvc{}
	svc.On("CheckIn", mock.Anything, host, "e1", "g1").Return(nil, fmt.Errorf("x: %w", domain.ErrForbidden))
	h := newGuestHandler(svc, &mockExporter{}, &fakeRoster{})
	r := withParams(withHost(httptest.NewRequest(http.MethodPost, "/v1/events/e1/guests/g1/check-in", nil)), "eventID", "e1", "guestID", "g1")
	rr := httptest.NewRecorder()
	h.CheckIn(rr, r)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

// --- Approve / CheckIn tests ---

func TestCheckIn_ApprovalRequired(t *testing.T) {
	svc := &mockGuestlistSvc{}
	svc.On("CheckIn", mock.Anything, host, "e1", "g1").Return(nil, domain.ErrApprovalRequired)
	h := newGuestHandler(svc, &mockExporter{}, &fakeRoster{})
	r := withParams(withHost(httptest.NewRequest(http.MethodPost, "/v1/events/e1/guests/g1/check-in", nil)), "eventID", "e1", "guestID", "g1")
	rr := httptest.NewRecorder()
	h.CheckIn(rr, r)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "approval_required", decode[MessageEnvelope](t, rr).ErrorCode)
}

func TestApprove_NoOpIsOK(t *testing.T) {
	g := &domain.Guest{ID: "g1", Status: domain.StatusInvited}
	svc := &mockGuestlistSvc{}
	svc.On("Approve", mock.Anything, host, "e1", "g1").
		Return(&domain.Transition{Guest: g, From: domain.StatusInvited, To: domain.StatusInvited}, nil)
	h := newGuestHandler(svc, &mockExporter{}, &fakeRoster{})
	r := withParams(withHost(httptest.NewRequest(http.MethodPost, "/v1/events/e1/guests/g1/approve", nil)), "eventID", "e1", "guestID", "g1")
	rr := httptest.NewRecorder()
	h.Approve(rr, r)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[TransitionEnvelope](t, rr).Transition.Applied)
}

// --- Remove tests ---

func TestRemove_CheckedInNeedsConfirmation(t *testing.T) {
	g := &domain.Guest{ID: "g1", Status: domain.StatusCheckedIn}
	svc := &mockGuestlistSvc{}
	svc.On("Remove", mock.Anything, host, "e1", "g1", false).Return(g, domain.ErrConfirmationRequired)
	h := newGuestHandler(svc, &mockExporter{}, &fakeRoster{})
	r := withParams(withHost(httptest.NewRequest(http.MethodDelete, "/v1/events/e1/guests/g1", nil)), "eventID", "e1", "guestID", "g1")
	rr := httptest.NewRecorder()
	h.Remove(rr, r)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	env := decode[TransitionEnvelope](t, rr)
	assert.True(t, env.ConfirmationRequired)
	assert.Equal(t, "g1", env.Guest.ID)
}

func TestRemove_Confirmed(t *testing.T) {
	g := &domain.Guest{ID: "g1", Status: domain.StatusCheckedIn}
	svc := &mockGuestlistSvc{}
	svc.On("Remove", mock.Anything, host, "e1", "g1", true).Return(g, nil)
	h := newGuestHandler(svc, &mockExporter{}, &fakeRoster{})
	r := withParams(withHost(httptest.NewRequest(http.MethodDelete, "/v1/events/e1/guests/g1?confirm=true", nil)), "eventID", "e1", "guestID", "g1")
	rr := httptest.NewRecorder()
	h.Remove(rr, r)
	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

func TestRemove_NotFound(t *testing.T) {
	svc := &mockGuestlistSvc{}
	svc.On("Remove", mock.Anything, host, "e1", "ghost", false).Return(nil, domain.ErrNotFound)
	h := newGuestHandler(svc, &mockExporter{}, &fakeRoster{})
	r := withParams(withHost(httptest.NewRequest(http.MethodDelete, "/v1/events/e1/guests/ghost", nil)), "eventID", "e1", "guestID", "ghost")
	rr := httptest.NewRecorder()
	h.Remove(rr, r)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// --- Export tests ---

func TestExport_HappyPath(t *testing.T) {
	exp := &mockExporter{}
	exp.On("Export", mock.Anything, "e1").Return(&guestlist.Export{Key: "exports/e1/x.csv", URL: "https://s3/x", Rows: 2}, nil)
	h := newGuestHandler(&mockGuestlistSvc{}, exp, &fakeRoster{})
	r := withParams(withHost(httptest.NewRequest(http.MethodPost, "/v1/events/e1/guests/export", nil)), "eventID", "e1")
	rr := httptest.NewRecorder()
	h.Export(rr, r)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, decode[ExportEnvelope](t, rr).Export.Rows)
}

// --- List tests ---

func TestList_SkipsLoadingAndSearches(t *testing.T) {
	zoe := domain.Guest{ID: "g1", Name: "Zoë Adams", Status: domain.StatusInvited}
	fr := &fakeRoster{
		snaps: []roster.Snapshot{
			{State: roster.StateLoading},
			{State: roster.StateList, Filter: domain.StatusCheckedIn, Guests: []domain.Guest{zoe}},
		},
		results: []domain.Guest{zoe},
	}
	h := newGuestHandler(&mockGuestlistSvc{}, &mockExporter{}, fr)
	r := withParams(withHost(httptest.NewRequest(http.MethodGet, "/v1/events/e1/guests?status=checkedIn&q=zoe", nil)), "eventID", "e1")
	rr := httptest.NewRecorder()
	h.List(rr, r)

	require.Equal(t, http.StatusOK, rr.Code)
	env := decode[RosterEnvelope](t, rr)
	assert.Equal(t, roster.StateList, env.Snapshot.State)
	assert.Equal(t, "e1", env.Snapshot.EventID)
	require.Len(t, env.Results, 1)
	assert.Equal(t, "Zoë Adams", env.Results[0].Name)
	assert.Equal(t, domain.StatusCheckedIn, fr.filter)
	assert.Equal(t, []string{"zoe"}, fr.queries)
	assert.True(t, fr.closed)
}

func TestList_UnknownStatus(t *testing.T) {
	h := newGuestHandler(&mockGuestlistSvc{}, &mockExporter{}, &fakeRoster{})
	r := withParams(withHost(httptest.NewRequest(http.MethodGet, "/v1/events/e1/guests?status=vip", nil)), "eventID", "e1")
	rr := httptest.NewRecorder()
	h.List(rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestList_StreamEndsWhileLoading(t *testing.T) {
	fr := &fakeRoster{snaps: []roster.Snapshot{{State: roster.StateLoading}}}
	h := newGuestHandler(&mockGuestlistSvc{}, &mockExporter{}, fr)
	r := withParams(withHost(httptest.NewRequest(http.MethodGet, "/v1/events/e1/guests", nil)), "eventID", "e1")
	rr := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.List(rr, r)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("List did not return")
	}
	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
}
