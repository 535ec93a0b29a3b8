package domain

import (
	"fmt"
	"time"
)

// TimeWindow is the granularity of an aggregation bucket
type TimeWindow string

const (
	WindowHourly TimeWindow = "hourly"
	WindowDaily  TimeWindow = "daily"
)

// unknownKeyPart stands in for a missing experiment id or variant in an aggregation key
const unknownKeyPart = "unknown"

// AggregationRecord holds the counters for one (experiment, variant, window, event type) bucket
type AggregationRecord struct {
	PartitionKey string
	SortKey      string
	EventCount   int64
	UniqueUsers  int64
}

// ParseTimeWindow converts a configuration string into a TimeWindow
func ParseTimeWindow(s string) (TimeWindow, error) {
	switch TimeWindow(s) {
	case WindowHourly, WindowDaily:
		return TimeWindow(s), nil
	default:
		return "", fmt.Errorf("unsupported time window: %s (supported: hourly, daily)", s)
	}
}

// AggregationKey builds the partition key for an experiment/variant/window bucket.
// hourly: exp_<id>#variant#<variant>#hour#YYYY-MM-DD-HH, daily: exp_<id>#variant#<variant>#day#YYYY-MM-DD.
func AggregationKey(experimentID, variant string, ts time.Time, window TimeWindow) (string, error) {
	if experimentID == "" {
		experimentID = unknownKeyPart
	}
	if variant == "" {
		variant = unknownKeyPart
	}

	ts = ts.UTC()
	switch window {
	case WindowHourly:
		return fmt.Sprintf("exp_%s#variant#%s#hour#%s", experimentID, variant, ts.Format("2006-01-02-15")), nil
	case WindowDaily:
		return fmt.Sprintf("exp_%s#variant#%s#day#%s", experimentID, variant, ts.Format("2006-01-02")), nil
	default:
		return "", fmt.Errorf("unsupported time window: %s", window)
	}
}

// AggregationSortKey derives the sort key for an event type
func AggregationSortKey(eventType string) string {
	return "event#" + eventType
}
