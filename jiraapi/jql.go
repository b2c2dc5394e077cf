package jiraapi

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// AssigneeQuery matches every issue assigned to accountID.
func AssigneeQuery(accountID string) string {
	return "assignee = " + strconv.Quote(accountID)
}

// AssigneeChangedSinceQuery matches issues assigned to accountID that were
// created or updated in the last minutes before now, reaching back at least
// to since.
//
// Absolute JQL dates are read in the API user's profile time zone, so the
// cutoff is sent as a relative offset ("-1441m"). The offset is rounded up
// and padded by a minute; callers filter the result exactly.
func AssigneeChangedSinceQuery(accountID string, since, now time.Time) string {
	minutes := int64(math.Ceil(now.Sub(since).Minutes())) + 1
	if minutes < 1 {
		minutes = 1
	}
	ts := strconv.Quote(fmt.Sprintf("-%dm", minutes))
	return fmt.Sprintf("%s AND (created >= %s OR updated >= %s)", AssigneeQuery(accountID), ts, ts)
}

// AssigneeCurrentWeekQuery matches issues assigned to accountID created since
// the start of the current week.
func AssigneeCurrentWeekQuery(accountID string) string {
	return AssigneeQuery(accountID) + " AND created >= startOfWeek()"
}
