package notification

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/go-guestlist/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC)

func rec(id string, typ domain.NotificationType, actor, eventID string, at time.Time) domain.Notification {
	n := domain.Notification{
		NotificationID: id,
		UserID:         "u1",
		ActorID:        "a-" + actor,
		Headline:       actor,
		Type:           typ,
		ImageURL:       "https://img/" + actor,
		CreatedAt:      at,
	}
	if eventID != "" {
		host := "org-1"
		n.HostID = &host
		n.EventID = &eventID
	}
	return n
}

func TestGroupRecords_ThreeGuestlistAddsCollapse(t *testing.T) {
	records := []domain.Notification{
		rec("n1", domain.NotificationGuestlistAdded, "Ann", "e1", now.Add(-3*time.Minute)),
		rec("n3", domain.NotificationGuestlistAdded, "Cat", "e1", now.Add(-1*time.Minute)),
		rec("n2", domain.NotificationGuestlistAdded, "Bob", "e1", now.Add(-2*time.Minute)),
	}

	groups := GroupRecords(records, now)

	require.Len(t, groups, 1)
	g := groups[0]
	assert.Equal(t, "n3", g.ID())
	require.NotNil(t, g.Representative.Count)
	assert.Equal(t, 2, *g.Representative.Count)
	assert.Equal(t, "Cat & 2 others", g.Representative.Headline)
	assert.Equal(t, []string{"n3", "n2", "n1"}, g.MemberIDs)
	assert.Equal(t, "https://img/Cat|https://img/Bob|https://img/Ann", g.Representative.ImageURL)
}

func TestGroupRecords_PairHeadline(t *testing.T) {
	groups := GroupRecords([]domain.Notification{
		rec("n1", domain.NotificationEventLiked, "Ann", "e1", now.Add(-time.Hour)),
		rec("n2", domain.NotificationEventLiked, "Bob", "e1", now),
	}, now)

	require.Len(t, groups, 1)
	assert.Equal(t, "Bob and Ann", groups[0].Representative.Headline)
	assert.Equal(t, 1, *groups[0].Representative.Count)
}

func TestGroupRecords_SingletonKeepsOriginal(t *testing.T) {
	groups := GroupRecords([]domain.Notification{rec("n1", domain.NotificationFollower, "Ann", "", now)}, now)

	require.Len(t, groups, 1)
	assert.Nil(t, groups[0].Representative.Count)
	assert.Equal(t, "Ann", groups[0].Representative.Headline)
	assert.Equal(t, "https://img/Ann", groups[0].Representative.ImageURL)
}

func TestGroupRecords_IndividualAttentionNeverMerges(t *testing.T) {
	groups := GroupRecords([]domain.Notification{
		rec("n1", domain.NotificationFriendRequest, "Ann", "", now.Add(-time.Minute)),
		rec("n2", domain.NotificationFriendRequest, "Bob", "", now),
	}, now)

	require.Len(t, groups, 2)
	assert.Equal(t, "n2", groups[0].ID())
	assert.Equal(t, "n1", groups[1].ID())
	for _, g := range groups {
		assert.Nil(t, g.Representative.Count)
	}
}

func TestGroupRecords_KeysSeparateEventsAndTypes(t *testing.T) {
	groups := GroupRecords([]domain.Notification{
		rec("n1", domain.NotificationGuestlistAdded, "Ann", "e1", now.Add(-3*time.Minute)),
		rec("n2", domain.NotificationGuestlistAdded, "Bob", "e2", now.Add(-2*time.Minute)),
		rec("n3", domain.NotificationGuestlistJoined, "Cat", "e1", now.Add(-1*time.Minute)),
	}, now)

	require.Len(t, groups, 3)
	assert.Equal(t, []string{"n3", "n2", "n1"}, []string{groups[0].ID(), groups[1].ID(), groups[2].ID()})
}

func TestGroupRecords_DistinctImagesCappedAtThree(t *testing.T) {
	var records []domain.Notification
	for i, actor := range []string{"A", "A", "B", "C", "D"} {
		records = append(records, rec(fmt.Sprint("n", i), domain.NotificationEventLiked, actor, "e1", now.Add(time.Duration(-i)*time.Minute)))
	}

	g := GroupRecords(records, now)[0]

	assert.Equal(t, []string{"https://img/A", "https://img/B", "https://img/C"}, g.Representative.ImageURLs)
	assert.Equal(t, "A & 4 others", g.Representative.Headline)
}

func TestGroupRecords_DropsExpired(t *testing.T) {
	past := now.Add(-time.Minute)
	expired := rec("n1", domain.NotificationPlannerReminder, "Ann", "e1", now.Add(-time.Hour))
	expired.ExpiresAt = &past

	assert.Empty(t, GroupRecords([]domain.Notification{expired}, now))
}

func TestGroupRecords_ConservesRecordsPerKey(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	types := []domain.NotificationType{
		domain.NotificationGuestlistAdded, domain.NotificationEventLiked,
		domain.NotificationFriendRequest, domain.NotificationMemberInvite, domain.NotificationFollower,
	}
	events := []string{"", "e1", "e2"}

	var records []domain.Notification
	want := map[GroupKey]int{}
	for i := 0; i < 300; i++ {
		n := rec(fmt.Sprint("n", i), types[r.Intn(len(types))], fmt.Sprint("actor", r.Intn(5)),
			events[r.Intn(len(events))], now.Add(-time.Duration(r.Intn(10000))*time.Second))
		records = append(records, n)
		want[keyOf(&n)]++
	}

	got := map[GroupKey]int{}
	seen := map[string]bool{}
	for _, g := range GroupRecords(records, now) {
		size := 1
		if g.Representative.Count != nil {
			size = *g.Representative.Count + 1
		}
		assert.Equal(t, g.Size(), size)
		got[g.Key] += size
		for _, id := range g.MemberIDs {
			assert.False(t, seen[id], "record %s in two groups", id)
			seen[id] = true
		}
	}
	assert.Equal(t, want, got)
	assert.Len(t, seen, len(records))
}

func TestBucketOf(t *testing.T) {
	loc := time.UTC
	startOfToday := time.Date(2026, 10, 16, 0, 0, 0, 0, loc)

	assert.Equal(t, BucketToday, BucketOf(startOfToday, now, loc))
	assert.Equal(t, BucketToday, BucketOf(now, now, loc))
	assert.Equal(t, BucketLast7Days, BucketOf(startOfToday.Add(-time.Second), now, loc))
	assert.Equal(t, BucketLast7Days, BucketOf(startOfToday.AddDate(0, 0, -7), now, loc))
	assert.Equal(t, BucketOlder, BucketOf(startOfToday.AddDate(0, 0, -7).Add(-time.Second), now, loc))
}

func TestSectioned_FiltersByCategory(t *testing.T) {
	groups := GroupRecords([]domain.Notification{
		rec("n1", domain.NotificationGuestlistAdded, "Ann", "e1", now),
		rec("n2", domain.NotificationFriendAccept, "Bob", "", now.AddDate(0, 0, -2)),
		rec("n3", domain.NotificationEventPosted, "Cat", "e2", now.AddDate(0, 0, -30)),
	}, now)

	all := Sectioned(groups, domain.CategoryAll, now, time.UTC)
	require.Len(t, all, 3)
	assert.Len(t, all[0].Groups, 1)
	assert.Len(t, all[1].Groups, 1)
	assert.Len(t, all[2].Groups, 1)

	friends := Sectioned(groups, domain.CategoryFriends, now, time.UTC)
	assert.Empty(t, friends[0].Groups)
	require.Len(t, friends[1].Groups, 1)
	assert.Equal(t, "n2", friends[1].Groups[0].ID())
	assert.Empty(t, friends[2].Groups)
}

func TestCountUnread(t *testing.T) {
	records := []domain.Notification{
		rec("n1", domain.NotificationFollower, "A", "", now),
		rec("n2", domain.NotificationFollower, "B", "", now.Add(-time.Hour)),
	}
	mark := now.Add(-time.Minute)
	same := now

	assert.Equal(t, 2, CountUnread(records, nil))
	assert.Equal(t, 1, CountUnread(records, &mark))
	assert.Equal(t, 0, CountUnread(records, &same), "equal timestamps are read")
}
