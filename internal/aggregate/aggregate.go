// Package aggregate turns raw usage events into per-user rollups with derived
// activity metrics, served through two interchangeable computation paths.
package aggregate

import (
	"context"
	"time"
)

// Filter enum values shared by both computation paths.
const (
	// FilterAll disables an enum filter.
	FilterAll = "all"

	// TimeRangeAll aggregates the full event history.
	TimeRangeAll = "all"
	// TimeRangeWeekly restricts to the trailing 7x24h window.
	TimeRangeWeekly = "weekly"
	// TimeRangeMonthly restricts to the trailing 30x24h window.
	TimeRangeMonthly = "monthly"

	// SortByLatestActivity orders by most recent activity first.
	SortByLatestActivity = "latest_activity"
	// SortByActivityScore orders by composite score, highest first.
	SortByActivityScore = "activity_score"
	// SortByUsageCount orders by event count, highest first.
	SortByUsageCount = "usage_count"
	// SortByTotalCost orders by accumulated cost, highest first.
	SortByTotalCost = "total_cost"
)

// Pagination defaults and ceilings.
const (
	// DefaultPage is the first page.
	DefaultPage = 1
	// DefaultLimit is the default page size.
	DefaultLimit = 10
	// MaxLimit caps the page size.
	MaxLimit = 100
)

// FilterCriteria captures one aggregation request. It is immutable once
// received; Normalized returns an adjusted copy rather than mutating.
type FilterCriteria struct {
	SearchQuery    string // Substring match on user name or raw user ID.
	ActivityFilter string // all, high, medium, low, inactive.
	UserTypeFilter string // all, internal, external.
	TimeRange      string // all, weekly, monthly.
	SortBy         string // latest_activity, activity_score, usage_count, total_cost.
	Page           int    // 1-based page number.
	Limit          int    // Page size.
}

// DefaultFilter returns the documented request defaults.
func DefaultFilter() FilterCriteria {
	return FilterCriteria{
		ActivityFilter: FilterAll,
		UserTypeFilter: "external",
		TimeRange:      TimeRangeAll,
		SortBy:         SortByLatestActivity,
		Page:           DefaultPage,
		Limit:          DefaultLimit,
	}
}

// Normalized returns a copy with empty enums defaulted and page/limit raised
// to their floors.
func (f FilterCriteria) Normalized() FilterCriteria {
	if f.ActivityFilter == "" {
		f.ActivityFilter = FilterAll
	}
	if f.UserTypeFilter == "" {
		f.UserTypeFilter = FilterAll
	}
	if f.TimeRange == "" {
		f.TimeRange = TimeRangeAll
	}
	if f.SortBy == "" {
		f.SortBy = SortByLatestActivity
	}
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	return f
}

// UserAggregate is the per-user rollup of usage events joined with the
// resolved identity and derived activity metrics. It is recomputed per query
// and never persisted.
type UserAggregate struct {
	UserID                string    `json:"user_id"`
	UserName              string    `json:"user_name"`
	UserEmail             string    `json:"user_email"`
	TotalPromptTokens     int64     `json:"total_prompt_tokens"`
	TotalCompletionTokens int64     `json:"total_completion_tokens"`
	TotalTokens           int64     `json:"total_tokens"`
	TotalEstimatedCost    float64   `json:"total_estimated_cost"`
	UsageCount            int       `json:"usage_count"`
	EarliestActivity      time.Time `json:"earliest_activity"`
	LatestActivity        time.Time `json:"latest_activity"`
	HasCompletedPayment   bool      `json:"has_completed_payment"`
	ActivityLevel         string    `json:"activity_level"`
	DaysSinceLastActivity int       `json:"days_since_last_activity"`
	ActivityScore         int       `json:"activity_score"`
	UserType              string    `json:"user_type"`
}

// PageResult is one page of aggregates plus totals computed over the full
// filtered, pre-pagination set.
type PageResult struct {
	Rows             []UserAggregate // Aggregates for the requested page.
	TotalCount       int             // Count of all aggregates matching the filter.
	GrandTotalTokens int64           // Token sum over the filtered set.
	GrandTotalCost   float64         // Cost sum over the filtered set, in dollars.
}

// Engine computes one aggregation request end to end: grouping, identity,
// scoring, filtering, sorting, pagination and totals.
type Engine interface {
	Aggregate(ctx context.Context, filter FilterCriteria) (*PageResult, error)
}
