// Package filter narrows a conversation list by search text and criteria.
package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// All disables a bucket constraint. The empty string does too.
const All = "all"

// DateRange buckets conversations by hours since last activity.
type DateRange string

const (
	DateRangeAll     DateRange = All
	DateRangeToday   DateRange = "today"
	DateRangeWeek    DateRange = "week"
	DateRangeMonth   DateRange = "month"
	DateRangeQuarter DateRange = "quarter"
)

var dateRangeHours = map[DateRange]float64{
	DateRangeToday:   24,
	DateRangeWeek:    168,
	DateRangeMonth:   720,
	DateRangeQuarter: 2160,
}

// MaxAge returns the bucket's upper bound, or false for no constraint.
func (d DateRange) MaxAge() (time.Duration, bool) {
	h, ok := dateRangeHours[d]
	if !ok {
		return 0, false
	}
	return time.Duration(h * float64(time.Hour)), true
}

// MessageCountBucket buckets conversations by number of messages.
type MessageCountBucket string

const (
	MessageCountAll    MessageCountBucket = All
	MessageCountShort  MessageCountBucket = "short"
	MessageCountMedium MessageCountBucket = "medium"
	MessageCountLong   MessageCountBucket = "long"
)

// Matches reports whether n messages fall into the bucket.
func (b MessageCountBucket) Matches(n int) bool {
	switch b {
	case MessageCountShort:
		return n <= 5
	case MessageCountMedium:
		return n >= 6 && n <= 20
	case MessageCountLong:
		return n > 20
	default:
		return true
	}
}

// DurationBucket buckets conversations by whole minutes of activity.
type DurationBucket string

const (
	DurationAll      DurationBucket = All
	DurationQuick    DurationBucket = "quick"
	DurationNormal   DurationBucket = "normal"
	DurationExtended DurationBucket = "extended"
)

// Matches reports whether minutes fall into the bucket.
func (b DurationBucket) Matches(minutes int) bool {
	switch b {
	case DurationQuick:
		return minutes < 5
	case DurationNormal:
		return minutes >= 5 && minutes <= 30
	case DurationExtended:
		return minutes > 30
	default:
		return true
	}
}

// Criteria is the set of history filters. The zero value constrains nothing.
type Criteria struct {
	DateRange          DateRange          `json:"date_range"`
	MessageCount       MessageCountBucket `json:"message_count"`
	Duration           DurationBucket     `json:"duration"`
	HasAttachmentsOnly bool               `json:"has_attachments_only"`
}

// DefaultCriteria returns criteria with every filter set to all.
func DefaultCriteria() Criteria {
	return Criteria{
		DateRange:    DateRangeAll,
		MessageCount: MessageCountAll,
		Duration:     DurationAll,
	}
}

// Active reports whether any filter constrains the result.
func (c Criteria) Active() bool {
	_, dated := c.DateRange.MaxAge()
	return dated ||
		(c.MessageCount != "" && c.MessageCount != MessageCountAll) ||
		(c.Duration != "" && c.Duration != DurationAll) ||
		c.HasAttachmentsOnly
}

// ParseCriteria validates raw filter values. Empty values mean all.
func ParseCriteria(dateRange, messageCount, duration, attachments string) (Criteria, error) {
	c := DefaultCriteria()

	switch d := DateRange(strings.ToLower(dateRange)); d {
	case "", DateRangeAll:
	case DateRangeToday, DateRangeWeek, DateRangeMonth, DateRangeQuarter:
		c.DateRange = d
	default:
		return Criteria{}, fmt.Errorf("unknown date range %q", dateRange)
	}

	switch m := MessageCountBucket(strings.ToLower(messageCount)); m {
	case "", MessageCountAll:
	case MessageCountShort, MessageCountMedium, MessageCountLong:
		c.MessageCount = m
	default:
		return Criteria{}, fmt.Errorf("unknown message count bucket %q", messageCount)
	}

	switch d := DurationBucket(strings.ToLower(duration)); d {
	case "", DurationAll:
	case DurationQuick, DurationNormal, DurationExtended:
		c.Duration = d
	default:
		return Criteria{}, fmt.Errorf("unknown duration bucket %q", duration)
	}

	if attachments != "" {
		v, err := strconv.ParseBool(attachments)
		if err != nil {
			return Criteria{}, fmt.Errorf("invalid attachments flag %q", attachments)
		}
		c.HasAttachmentsOnly = v
	}

	return c, nil
}
