// Package schedule decides when a feed definition is due for a new
// generation. Evaluation is a pure function of the feed's frequency
// policy, its last_generated timestamp, and the current time.
package schedule

import (
	"time"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
)

// IsDue reports whether a feed should be generated at instant now.
//
// Weekly and monthly schedule_day follow the upstream convention:
// 0-6 with Monday=0 for weekly, 1-31 for monthly. A monthly schedule_day
// that does not exist in the current month (e.g. 31 in February) is
// treated as not due; the product owner has not confirmed a rollover
// rule, so the evaluator stays conservative.
func IsDue(feed *domain.Feed, now time.Time) bool {
	if !feed.IsActive {
		return false
	}

	switch feed.Frequency {
	case domain.FrequencyManual:
		return false

	case domain.FrequencyHourly:
		return feed.LastGenerated == nil || now.Sub(*feed.LastGenerated) >= time.Hour

	case domain.FrequencyDaily:
		if feed.ScheduleTime == nil {
			return false
		}
		if feed.LastGenerated != nil && sameDay(*feed.LastGenerated, now) {
			return false
		}
		return clockMinutes(now) >= clockMinutes(*feed.ScheduleTime)

	case domain.FrequencyWeekly:
		if feed.ScheduleDay == nil {
			return false
		}
		if mondayWeekday(now) != *feed.ScheduleDay {
			return false
		}
		return feed.LastGenerated == nil || now.Sub(*feed.LastGenerated) >= 7*24*time.Hour

	case domain.FrequencyMonthly:
		if feed.ScheduleDay == nil {
			return false
		}
		if now.Day() != *feed.ScheduleDay {
			return false
		}
		if feed.LastGenerated == nil {
			return true
		}
		last := *feed.LastGenerated
		return last.Month() != now.Month() || last.Year() != now.Year()
	}

	return false
}

// NextRun computes the next scheduled run after now, for status
// surfaces. It returns nil for manual or inactive feeds and for
// misconfigured schedules. A monthly schedule_day beyond the current
// month's length falls over to the first of the following month.
func NextRun(feed *domain.Feed, now time.Time) *time.Time {
	if feed.Frequency == domain.FrequencyManual || !feed.IsActive {
		return nil
	}

	switch feed.Frequency {
	case domain.FrequencyHourly:
		t := now.Add(time.Hour)
		return &t

	case domain.FrequencyDaily:
		if feed.ScheduleTime == nil {
			return nil
		}
		st := *feed.ScheduleTime
		next := time.Date(now.Year(), now.Month(), now.Day(), st.Hour(), st.Minute(), 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return &next

	case domain.FrequencyWeekly:
		if feed.ScheduleDay == nil {
			return nil
		}
		daysAhead := *feed.ScheduleDay - mondayWeekday(now)
		if daysAhead <= 0 {
			daysAhead += 7
		}
		t := now.AddDate(0, 0, daysAhead)
		return &t

	case domain.FrequencyMonthly:
		if feed.ScheduleDay == nil {
			return nil
		}
		if *feed.ScheduleDay > daysInMonth(now) {
			t := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
			return &t
		}
		t := time.Date(now.Year(), now.Month(), *feed.ScheduleDay, 0, 0, 0, 0, now.Location())
		return &t
	}

	return nil
}

// mondayWeekday maps time.Weekday (Sunday=0) onto the Monday=0
// convention the feed schema uses.
func mondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func clockMinutes(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, -1).Day()
}
