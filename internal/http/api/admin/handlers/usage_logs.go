package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/seedframe/adminapi/internal/aggregate"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// UsageLogsHandler serves aggregated usage reporting endpoints.
type UsageLogsHandler struct {
	engine  aggregate.Engine
	timeout time.Duration
}

// NewUsageLogsHandler constructs a UsageLogsHandler. The timeout bounds the
// whole aggregation pipeline for one request.
func NewUsageLogsHandler(engine aggregate.Engine, timeout time.Duration) *UsageLogsHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &UsageLogsHandler{engine: engine, timeout: timeout}
}

// aggregatedRequest is the request body; every field is optional.
type aggregatedRequest struct {
	Page           int    `json:"page"`
	Limit          int    `json:"limit"`
	SearchQuery    string `json:"search_query"`
	ActivityFilter string `json:"activity_filter"`
	UserTypeFilter string `json:"user_type_filter"`
	SortBy         string `json:"sort_by"`
	TimeRange      string `json:"time_range"`
}

// aggregatedResponse is the success payload.
type aggregatedResponse struct {
	Success          bool                      `json:"success"`
	Data             []aggregate.UserAggregate `json:"data"`
	TotalCount       int                       `json:"total_count"`
	GrandTotalTokens int64                     `json:"grand_total_tokens"`
	GrandTotalCost   float64                   `json:"grand_total_cost"`
	Page             int                       `json:"page"`
	Limit            int                       `json:"limit"`
}

// Allowed enum values per request field.
var (
	allowedActivityFilters = map[string]struct{}{"all": {}, "high": {}, "medium": {}, "low": {}, "inactive": {}}
	allowedUserTypeFilters = map[string]struct{}{"all": {}, "internal": {}, "external": {}}
	allowedTimeRanges      = map[string]struct{}{"all": {}, "weekly": {}, "monthly": {}}
	allowedSortKeys        = map[string]struct{}{"latest_activity": {}, "activity_score": {}, "usage_count": {}, "total_cost": {}}
)

// Aggregated returns per-user usage rollups, filtered, sorted and paginated.
func (h *UsageLogsHandler) Aggregated(c *gin.Context) {
	var req aggregatedRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil && !errors.Is(errBind, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	filter, errFilter := req.toFilter()
	if errFilter != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errFilter.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	result, errAggregate := h.engine.Aggregate(ctx, filter)
	if errAggregate != nil {
		log.WithError(errAggregate).Error("usage logs: aggregation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to fetch usage logs"})
		return
	}

	c.JSON(http.StatusOK, aggregatedResponse{
		Success:          true,
		Data:             result.Rows,
		TotalCount:       result.TotalCount,
		GrandTotalTokens: result.GrandTotalTokens,
		GrandTotalCost:   result.GrandTotalCost,
		Page:             filter.Page,
		Limit:            filter.Limit,
	})
}

// toFilter applies defaults and validates the request enums.
func (r aggregatedRequest) toFilter() (aggregate.FilterCriteria, error) {
	filter := aggregate.DefaultFilter()

	if r.Page != 0 {
		if r.Page < 1 {
			return filter, errors.New("page must be >= 1")
		}
		filter.Page = r.Page
	}
	if r.Limit != 0 {
		if r.Limit < 1 || r.Limit > aggregate.MaxLimit {
			return filter, errors.New("limit must be between 1 and 100")
		}
		filter.Limit = r.Limit
	}
	filter.SearchQuery = r.SearchQuery

	if r.ActivityFilter != "" {
		if _, ok := allowedActivityFilters[r.ActivityFilter]; !ok {
			return filter, errors.New("activity_filter must be one of: all, high, medium, low, inactive")
		}
		filter.ActivityFilter = r.ActivityFilter
	}
	if r.UserTypeFilter != "" {
		if _, ok := allowedUserTypeFilters[r.UserTypeFilter]; !ok {
			return filter, errors.New("user_type_filter must be one of: all, internal, external")
		}
		filter.UserTypeFilter = r.UserTypeFilter
	}
	if r.TimeRange != "" {
		if _, ok := allowedTimeRanges[r.TimeRange]; !ok {
			return filter, errors.New("time_range must be one of: all, weekly, monthly")
		}
		filter.TimeRange = r.TimeRange
	}
	if r.SortBy != "" {
		if _, ok := allowedSortKeys[r.SortBy]; !ok {
			return filter, errors.New("sort_by must be one of: latest_activity, activity_score, usage_count, total_cost")
		}
		filter.SortBy = r.SortBy
	}
	return filter, nil
}
