package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-guestlist/internal/application/notification"
	"github.com/go-guestlist/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine delivers one canned view when Run starts.
type fakeEngine struct {
	view     notification.View
	silent   bool
	updates  chan notification.View
	unread   int
	deleted  []string
	viewed   bool
	category domain.NotificationCategory
	err      error
}

func newFakeEngine(view notification.View) *fakeEngine {
	return &fakeEngine{view: view, updates: make(chan notification.View, 1)}
}

func (f *fakeEngine) Run(ctx context.Context) error {
	if !f.silent {
		f.updates <- f.view
	}
	<-ctx.Done()
	return nil
}

func (f *fakeEngine) Updates() <-chan notification.View { return f.updates }

func (f *fakeEngine) Sections(c domain.NotificationCategory) []notification.Section {
	f.category = c
	return notification.Sectioned(f.view.Groups, c, time.Now(), time.UTC)
}

func (f *fakeEngine) Delete(_ context.Context, groupID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, g := range f.view.Groups {
		if g.ID() == groupID {
			f.deleted = g.MemberIDs
			return f.deleted, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeEngine) UnreadCount(context.Context) (int, error) { return f.unread, f.err }

func (f *fakeEngine) MarkViewed(context.Context) error {
	f.viewed = true
	return f.err
}

func groupedView() notification.View {
	now := time.Now()
	recs := []domain.Notification{
		{NotificationID: "n1", Type: domain.NotificationFollower, Headline: "Ann", CreatedAt: now.Add(-time.Minute)},
		{NotificationID: "n2", Type: domain.NotificationFollower, Headline: "Bea", CreatedAt: now.Add(-2 * time.Minute)},
	}
	return notification.View{Received: true, Records: recs, Groups: notification.GroupRecords(recs, now)}
}

func newNotifHandler(e *fakeEngine) *NotificationHandler {
	return NewNotificationHandler(func(string) NotificationEngine { return e })
}

func TestNotificationList_SectionsAndUnread(t *testing.T) {
	e := newFakeEngine(groupedView())
	e.unread = 2
	rr := httptest.NewRecorder()
	newNotifHandler(e).List(rr, withHost(httptest.NewRequest(http.MethodGet, "/v1/notifications?category=friends", nil)))

	require.Equal(t, http.StatusOK, rr.Code)
	env := decode[NotificationsEnvelope](t, rr)
	assert.Equal(t, 2, env.Unread)
	require.Len(t, env.Sections, len(notification.Buckets))
	var groups []notification.Group
	for _, s := range env.Sections {
		groups = append(groups, s.Groups...)
	}
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"n1", "n2"}, groups[0].MemberIDs)
	assert.Equal(t, domain.CategoryFriends, e.category)
}

func TestNotificationList_UnknownCategory(t *testing.T) {
	rr := httptest.NewRecorder()
	newNotifHandler(newFakeEngine(groupedView())).List(rr, withHost(httptest.NewRequest(http.MethodGet, "/v1/notifications?category=spam", nil)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNotificationList_NoDeliveryTimesOut(t *testing.T) {
	e := newFakeEngine(notification.View{})
	e.silent = true
	h := newNotifHandler(e)
	h.timeout = 50 * time.Millisecond
	rr := httptest.NewRecorder()
	h.List(rr, withHost(httptest.NewRequest(http.MethodGet, "/v1/notifications", nil)))
	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
}

func TestNotificationDelete_RemovesWholeGroup(t *testing.T) {
	e := newFakeEngine(groupedView())
	r := withParams(withHost(httptest.NewRequest(http.MethodDelete, "/v1/notifications/n1", nil)), "id", "n1")
	rr := httptest.NewRecorder()
	newNotifHandler(e).Delete(rr, r)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"n1", "n2"}, decode[DeletedEnvelope](t, rr).Deleted)
}

func TestNotificationDelete_UnknownIDIsNotFound(t *testing.T) {
	e := newFakeEngine(groupedView())
	r := withParams(withHost(httptest.NewRequest(http.MethodDelete, "/v1/notifications/other", nil)), "id", "other")
	rr := httptest.NewRecorder()
	newNotifHandler(e).Delete(rr, r)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Empty(t, e.deleted)
}

func TestNotificationDelete_StoreFailure(t *testing.T) {
	e := newFakeEngine(groupedView())
	e.err = domain.ErrUnavailable
	r := withParams(withHost(httptest.NewRequest(http.MethodDelete, "/v1/notifications/n1", nil)), "id", "n1")
	rr := httptest.NewRecorder()
	newNotifHandler(e).Delete(rr, r)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestNotificationMarkViewed(t *testing.T) {
	e := newFakeEngine(notification.View{})
	rr := httptest.NewRecorder()
	newNotifHandler(e).MarkViewed(rr, withHost(httptest.NewRequest(http.MethodPost, "/v1/notifications/viewed", nil)))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, e.viewed)
}

func TestNotificationMarkViewed_MissingClaims(t *testing.T) {
	rr := httptest.NewRecorder()
	newNotifHandler(newFakeEngine(notification.View{})).MarkViewed(rr, httptest.NewRequest(http.MethodPost, "/v1/notifications/viewed", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
