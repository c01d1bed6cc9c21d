package aggregate

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ProcedureName is the remote rollup function both paths are implemented
// against. Its DDL ships in internal/db and is installed during migration.
const ProcedureName = "get_aggregated_usage_logs"

// RemoteEngine delegates the full rollup computation to the remote stored
// procedure. It only supports the unwindowed time range; windowed rollups are
// always computed locally.
type RemoteEngine struct {
	db   *gorm.DB
	call func(ctx context.Context, filter FilterCriteria) ([]procRow, error)
}

// NewRemoteEngine constructs a RemoteEngine.
func NewRemoteEngine(db *gorm.DB) *RemoteEngine {
	e := &RemoteEngine{db: db}
	e.call = e.callProcedure
	return e
}

// procRow is one pre-aggregated row returned by the procedure. The grand
// totals are duplicated on every row; callers read them from the first.
type procRow struct {
	UserID                string    `gorm:"column:user_id"`
	UserName              string    `gorm:"column:user_name"`
	UserEmail             string    `gorm:"column:user_email"`
	TotalPromptTokens     int64     `gorm:"column:total_prompt_tokens"`
	TotalCompletionTokens int64     `gorm:"column:total_completion_tokens"`
	TotalTokens           int64     `gorm:"column:total_tokens"`
	TotalEstimatedCost    float64   `gorm:"column:total_estimated_cost"`
	UsageCount            int       `gorm:"column:usage_count"`
	EarliestActivity      time.Time `gorm:"column:earliest_activity"`
	LatestActivity        time.Time `gorm:"column:latest_activity"`
	HasCompletedPayment   bool      `gorm:"column:has_completed_payment"`
	ActivityLevel         string    `gorm:"column:activity_level"`
	DaysSinceLastActivity int       `gorm:"column:days_since_last_activity"`
	ActivityScore         float64   `gorm:"column:activity_score"`
	UserType              string    `gorm:"column:user_type"`
	TotalCount            int       `gorm:"column:total_count"`
	GrandTotalTokens      int64     `gorm:"column:grand_total_tokens"`
	GrandTotalCost        float64   `gorm:"column:grand_total_cost"`
}

// callProcedure runs one procedure call with the filter fields as parameters.
func (e *RemoteEngine) callProcedure(ctx context.Context, filter FilterCriteria) ([]procRow, error) {
	activityFilter := filter.ActivityFilter
	if activityFilter == FilterAll {
		activityFilter = ""
	}

	var rows []procRow
	if errScan := e.db.WithContext(ctx).
		Raw("SELECT * FROM "+ProcedureName+"(?, ?, ?, ?, ?, ?)",
			filter.SearchQuery, activityFilter, filter.Page, filter.Limit, filter.UserTypeFilter, filter.SortBy).
		Scan(&rows).Error; errScan != nil {
		return nil, fmt.Errorf("call %s: %w", ProcedureName, errScan)
	}
	return rows, nil
}

// Aggregate implements Engine by delegating the rollup to the remote
// procedure. Totals ride on every returned row, so a page past the end of the
// filtered set carries none; a one-row read of the first page recovers them.
func (e *RemoteEngine) Aggregate(ctx context.Context, filter FilterCriteria) (*PageResult, error) {
	filter = filter.Normalized()
	if filter.TimeRange != TimeRangeAll {
		return nil, errWindowedTimeRange
	}

	rows, errCall := e.call(ctx, filter)
	if errCall != nil {
		return nil, errCall
	}

	result := &PageResult{Rows: make([]UserAggregate, 0, len(rows))}
	if len(rows) > 0 {
		result.TotalCount = rows[0].TotalCount
		result.GrandTotalTokens = rows[0].GrandTotalTokens
		result.GrandTotalCost = rows[0].GrandTotalCost
	} else if filter.Page > 1 {
		firstPage := filter
		firstPage.Page = 1
		firstPage.Limit = 1
		totals, errTotals := e.call(ctx, firstPage)
		if errTotals != nil {
			return nil, errTotals
		}
		if len(totals) > 0 {
			result.TotalCount = totals[0].TotalCount
			result.GrandTotalTokens = totals[0].GrandTotalTokens
			result.GrandTotalCost = totals[0].GrandTotalCost
		}
	}
	for _, row := range rows {
		result.Rows = append(result.Rows, UserAggregate{
			UserID:                row.UserID,
			UserName:              row.UserName,
			UserEmail:             row.UserEmail,
			TotalPromptTokens:     row.TotalPromptTokens,
			TotalCompletionTokens: row.TotalCompletionTokens,
			TotalTokens:           row.TotalTokens,
			TotalEstimatedCost:    row.TotalEstimatedCost,
			UsageCount:            row.UsageCount,
			EarliestActivity:      row.EarliestActivity.UTC(),
			LatestActivity:        row.LatestActivity.UTC(),
			HasCompletedPayment:   row.HasCompletedPayment,
			ActivityLevel:         row.ActivityLevel,
			DaysSinceLastActivity: row.DaysSinceLastActivity,
			ActivityScore:         int(row.ActivityScore),
			UserType:              row.UserType,
		})
	}
	return result, nil
}
