package model

import (
	"fmt"
	"time"
)

// MetricType is the canonical engagement metric set. Platform-specific field
// names are normalized to these before persistence.
type MetricType string

const (
	MetricImpressions MetricType = "impressions"
	MetricClicks      MetricType = "clicks"
	MetricLikes       MetricType = "likes"
	MetricShares      MetricType = "shares"
	MetricComments    MetricType = "comments"
	MetricReach       MetricType = "reach"
	MetricEngagement  MetricType = "engagement"
	MetricViews       MetricType = "views"
)

var metricTypes = map[MetricType]struct{}{
	MetricImpressions: {}, MetricClicks: {}, MetricLikes: {}, MetricShares: {},
	MetricComments: {}, MetricReach: {}, MetricEngagement: {}, MetricViews: {},
}

func ParseMetricType(s string) (MetricType, error) {
	t := MetricType(s)
	if _, ok := metricTypes[t]; !ok {
		return "", fmt.Errorf("unknown metric type %q", s)
	}
	return t, nil
}

// Metric is an immutable time-stamped measurement tied to a publish job.
// RawName preserves the platform-specific metric field it was read from.
type Metric struct {
	ID           string     `json:"id" db:"id"`
	PublishJobID string     `json:"publish_job_id" db:"publish_job_id"`
	Type         MetricType `json:"type" db:"metric_type"`
	Value        int64      `json:"value" db:"value"`
	RawName      string     `json:"raw_name" db:"raw_name"`
	RecordedAt   time.Time  `json:"recorded_at" db:"recorded_at"`
}
