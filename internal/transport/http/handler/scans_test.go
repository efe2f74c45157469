package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-guestlist/internal/application/checkin"
	"github.com/go-guestlist/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockDispatcher struct{ mock.Mock }

func (m *mockDispatcher) HandleScan(ctx context.Context, actor domain.Actor, eventID, raw string) (*checkin.ScanOutcome, error) {
	args := m.Called(ctx, actor, eventID, raw)
	if o, _ := args.Get(0).(*checkin.ScanOutcome); o != nil {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDispatcher) ConfirmScan(ctx context.Context, actor domain.Actor, eventID, raw string) (*checkin.ScanOutcome, error) {
	args := m.Called(ctx, actor, eventID, raw)
	if o, _ := args.Get(0).(*checkin.ScanOutcome); o != nil {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

func scanReq(t *testing.T, target, payload string) *http.Request {
	return withParams(withHost(jsonReq(t, http.MethodPost, target, scanRequest{Payload: payload})), "eventID", "e1")
}

func TestScan_CheckedIn(t *testing.T) {
	d := &mockDispatcher{}
	d.On("HandleScan", mock.Anything, host, "e1", "u1").
		Return(&checkin.ScanOutcome{Kind: checkin.ScanCheckedIn}, nil)
	rr := httptest.NewRecorder()
	NewScanHandler(d).Scan(rr, scanReq(t, "/v1/events/e1/scans", "u1"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, checkin.ScanCheckedIn, decode[ScanEnvelope](t, rr).Outcome.Kind)
}

func TestScan_IgnoredPayloadIsOK(t *testing.T) {
	d := &mockDispatcher{}
	d.On("HandleScan", mock.Anything, host, "e1", "https://evil.example").
		Return(&checkin.ScanOutcome{Kind: checkin.ScanIgnored}, nil)
	rr := httptest.NewRecorder()
	NewScanHandler(d).Scan(rr, scanReq(t, "/v1/events/e1/scans", "https://evil.example"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, checkin.ScanIgnored, decode[ScanEnvelope](t, rr).Outcome.Kind)
}

func TestScan_InviteOnlyAsksForConfirmation(t *testing.T) {
	d := &mockDispatcher{}
	d.On("HandleScan", mock.Anything, host, "e1", "u9").
		Return(&checkin.ScanOutcome{Kind: checkin.ScanConfirmationRequired, User: &domain.User{UserID: "u9"}}, nil)
	rr := httptest.NewRecorder()
	NewScanHandler(d).Scan(rr, scanReq(t, "/v1/events/e1/scans", "u9"))
	assert.Equal(t, http.StatusAccepted, rr.Code)
	env := decode[ScanEnvelope](t, rr)
	assert.True(t, env.ConfirmationRequired)
	assert.Equal(t, "u9", env.Outcome.User.UserID)
}

func TestScan_LookupFailure(t *testing.T) {
	d := &mockDispatcher{}
	d.On("HandleScan", mock.Anything, host, "e1", "u9").Return(nil, domain.ErrUnableToAddGuest)
	rr := httptest.NewRecorder()
	NewScanHandler(d).Scan(rr, scanReq(t, "/v1/events/e1/scans", "u9"))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestConfirmScan_Adds(t *testing.T) {
	d := &mockDispatcher{}
	d.On("ConfirmScan", mock.Anything, host, "e1", "u9").
		Return(&checkin.ScanOutcome{Kind: checkin.ScanAdded, Transition: &domain.Transition{Applied: true}}, nil)
	rr := httptest.NewRecorder()
	NewScanHandler(d).Confirm(rr, scanReq(t, "/v1/events/e1/scans/confirm", "u9"))
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, checkin.ScanAdded, decode[ScanEnvelope](t, rr).Outcome.Kind)
	d.AssertExpectations(t)
}

func TestConfirmScan_BadPayload(t *testing.T) {
	d := &mockDispatcher{}
	d.On("ConfirmScan", mock.Anything, host, "e1", "bad payload").Return(nil, domain.ErrBadRequest)
	rr := httptest.NewRecorder()
	NewScanHandler(d).Confirm(rr, scanReq(t, "/v1/events/e1/scans/confirm", "bad payload"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
