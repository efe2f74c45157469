// Package notification groups a user's raw notification records for
// display and fans new notifications out to storage and push delivery.
package notification

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-guestlist/internal/domain"
)

// ImageDelimiter joins the avatars of a grouped notification into its
// ImageURL. It never appears in a URL unescaped.
const ImageDelimiter = "|"

// maxGroupImages caps how many distinct avatars a group carries.
const maxGroupImages = 3

// GroupKey identifies records that collapse into one displayed cell.
// Records that need individual attention use their own id as Singleton.
type GroupKey struct {
	Type      domain.NotificationType
	HostID    string
	EventID   string
	Singleton string
}

func keyOf(n *domain.Notification) GroupKey {
	if n.Type.RequiresIndividualAttention() {
		return GroupKey{Type: n.Type, Singleton: n.NotificationID}
	}
	return GroupKey{Type: n.Type, HostID: n.HostIDValue(), EventID: n.EventIDValue()}
}

// Group is one displayed cell. Representative is the most recent member,
// rewritten to describe the whole group; MemberIDs lists every raw record
// it collapsed, representative first.
type Group struct {
	Key            GroupKey            `json:"-"`
	Representative domain.Notification `json:"notification"`
	MemberIDs      []string            `json:"member_ids"`
	EventTitle     string              `json:"event_title,omitempty"`
}

// ID is the id the group is addressed by: its representative's.
func (g *Group) ID() string { return g.Representative.NotificationID }

// Size is the number of raw records in the group.
func (g *Group) Size() int { return len(g.MemberIDs) }

// GroupRecords collapses records into display groups ordered by the
// representative's timestamp, newest first. Expired records are dropped.
// records need not be sorted.
func GroupRecords(records []domain.Notification, now time.Time) []Group {
	live := make([]domain.Notification, 0, len(records))
	for _, n := range records {
		if !n.Expired(now) {
			live = append(live, n)
		}
	}
	slices.SortStableFunc(live, newestFirst)

	index := make(map[GroupKey]int)
	var members [][]domain.Notification
	for _, n := range live {
		k := keyOf(&n)
		i, ok := index[k]
		if !ok {
			i = len(members)
			index[k] = i
			members = append(members, nil)
		}
		members[i] = append(members[i], n)
	}

	groups := make([]Group, 0, len(members))
	for _, ms := range members {
		groups = append(groups, collapse(ms))
	}
	slices.SortStableFunc(groups, func(a, b Group) int {
		return newestFirst(a.Representative, b.Representative)
	})
	return groups
}

// collapse builds a group from its members, which are sorted newest first.
func collapse(ms []domain.Notification) Group {
	rep := ms[0]
	g := Group{Key: keyOf(&rep), MemberIDs: make([]string, len(ms))}
	for i, m := range ms {
		g.MemberIDs[i] = m.NotificationID
	}

	if len(ms) > 1 {
		count := len(ms) - 1
		rep.Count = &count
		if len(ms) == 2 {
			rep.Headline = fmt.Sprintf("%s and %s", ms[0].Headline, ms[1].Headline)
		} else {
			rep.Headline = fmt.Sprintf("%s & %d others", ms[0].Headline, count)
		}

		var images []string
		for _, m := range ms {
			if m.ImageURL == "" || slices.Contains(images, m.ImageURL) {
				continue
			}
			images = append(images, m.ImageURL)
			if len(images) == maxGroupImages {
				break
			}
		}
		rep.ImageURLs = images
		rep.ImageURL = strings.Join(images, ImageDelimiter)
	}
	g.Representative = rep
	return g
}

func newestFirst(a, b domain.Notification) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.NotificationID, b.NotificationID)
}

// Bucket is a recency section of the grouped list.
type Bucket string

const (
	BucketToday     Bucket = "today"
	BucketLast7Days Bucket = "last_7_days"
	BucketOlder     Bucket = "older"
)

// Buckets lists every bucket in display order.
var Buckets = []Bucket{BucketToday, BucketLast7Days, BucketOlder}

// Section is one recency bucket of groups, still newest first.
type Section struct {
	Bucket Bucket  `json:"bucket"`
	Groups []Group `json:"groups"`
}

// BucketOf places t relative to the start of now's day in loc.
func BucketOf(t, now time.Time, loc *time.Location) Bucket {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	weekAgo := today.AddDate(0, 0, -7)
	switch {
	case !t.Before(today):
		return BucketToday
	case !t.Before(weekAgo):
		return BucketLast7Days
	default:
		return BucketOlder
	}
}

// Sectioned partitions groups into recency buckets, keeping only groups in
// category (CategoryAll keeps every group). Every bucket is present, empty
// or not.
func Sectioned(groups []Group, category domain.NotificationCategory, now time.Time, loc *time.Location) []Section {
	sections := make([]Section, len(Buckets))
	pos := make(map[Bucket]int, len(Buckets))
	for i, b := range Buckets {
		sections[i] = Section{Bucket: b, Groups: []Group{}}
		pos[b] = i
	}
	for _, g := range groups {
		if category != domain.CategoryAll && g.Representative.Type.Category() != category {
			continue
		}
		i := pos[BucketOf(g.Representative.CreatedAt, now, loc)]
		sections[i].Groups = append(sections[i].Groups, g)
	}
	return sections
}
