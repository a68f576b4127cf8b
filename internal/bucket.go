package internal

import "time"

// Bucket is a recency group used to display session history
type Bucket string

const (
	BucketToday     Bucket = "today"
	BucketThisWeek  Bucket = "thisWeek"
	BucketThisMonth Bucket = "thisMonth"
	BucketOlder     Bucket = "older"
)

// Label returns the heading shown above a bucket
func (b Bucket) Label() string {
	switch b {
	case BucketToday:
		return "Today"
	case BucketThisWeek:
		return "This Week"
	case BucketThisMonth:
		return "This Month"
	default:
		return "Older"
	}
}

// GroupedSessions holds the result of GroupSessions
type GroupedSessions struct {
	Today     []Session
	ThisWeek  []Session
	ThisMonth []Session
	Older     []Session
}

// BucketGroup is one non-empty bucket, in display order
type BucketGroup struct {
	Bucket   Bucket
	Sessions []Session
}

// Groups returns the non-empty buckets from newest to oldest
func (g GroupedSessions) Groups() []BucketGroup {
	all := []BucketGroup{
		{Bucket: BucketToday, Sessions: g.Today},
		{Bucket: BucketThisWeek, Sessions: g.ThisWeek},
		{Bucket: BucketThisMonth, Sessions: g.ThisMonth},
		{Bucket: BucketOlder, Sessions: g.Older},
	}
	groups := make([]BucketGroup, 0, len(all))
	for _, group := range all {
		if len(group.Sessions) > 0 {
			groups = append(groups, group)
		}
	}
	return groups
}

// Flatten returns every session in display order
func (g GroupedSessions) Flatten() []Session {
	out := make([]Session, 0, g.Len())
	for _, group := range g.Groups() {
		out = append(out, group.Sessions...)
	}
	return out
}

// Len returns the total number of sessions across all buckets
func (g GroupedSessions) Len() int {
	return len(g.Today) + len(g.ThisWeek) + len(g.ThisMonth) + len(g.Older)
}

// BucketFor assigns a timestamp to its recency bucket relative to now. Boundaries are
// the start of now's day and 7 and 30 calendar days before it; a timestamp exactly on
// a boundary belongs to the newer bucket.
func BucketFor(ts, now time.Time) Bucket {
	y, m, d := now.Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	switch {
	case !ts.Before(startOfDay):
		return BucketToday
	case !ts.Before(startOfDay.AddDate(0, 0, -7)):
		return BucketThisWeek
	case !ts.Before(startOfDay.AddDate(0, 0, -30)):
		return BucketThisMonth
	default:
		return BucketOlder
	}
}

// GroupSessions partitions sessions by creation time. The input is not modified and
// the order within each bucket follows the input.
func GroupSessions(sessions []Session, now time.Time) GroupedSessions {
	var grouped GroupedSessions
	for _, session := range sessions {
		switch BucketFor(session.Timestamp.Time, now) {
		case BucketToday:
			grouped.Today = append(grouped.Today, session)
		case BucketThisWeek:
			grouped.ThisWeek = append(grouped.ThisWeek, session)
		case BucketThisMonth:
			grouped.ThisMonth = append(grouped.ThisMonth, session)
		default:
			grouped.Older = append(grouped.Older, session)
		}
	}
	return grouped
}
