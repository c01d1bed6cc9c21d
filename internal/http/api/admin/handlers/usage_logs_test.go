package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/seedframe/adminapi/internal/aggregate"
)

type usageLogsTestEngine struct {
	result *aggregate.PageResult
	err    error
	filter aggregate.FilterCriteria
	calls  int
}

func (e *usageLogsTestEngine) Aggregate(_ context.Context, filter aggregate.FilterCriteria) (*aggregate.PageResult, error) {
	e.calls++
	e.filter = filter
	return e.result, e.err
}

func newUsageLogsRouter(engine aggregate.Engine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewUsageLogsHandler(engine, time.Second)
	router.POST("/v0/admin/usage-logs/aggregated", handler.Aggregated)
	return router
}

func postAggregated(t *testing.T, router *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v0/admin/usage-logs/aggregated", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestAggregatedDefaults(t *testing.T) {
	engine := &usageLogsTestEngine{result: &aggregate.PageResult{Rows: []aggregate.UserAggregate{}}}
	router := newUsageLogsRouter(engine)

	recorder := postAggregated(t, router, `{}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	got := engine.filter
	if got.Page != aggregate.DefaultPage || got.Limit != aggregate.DefaultLimit {
		t.Fatalf("expected default pagination, got page %d limit %d", got.Page, got.Limit)
	}
	if got.ActivityFilter != aggregate.FilterAll {
		t.Fatalf("expected activity filter all, got %q", got.ActivityFilter)
	}
	if got.UserTypeFilter != "external" {
		t.Fatalf("expected default user type external, got %q", got.UserTypeFilter)
	}
	if got.TimeRange != aggregate.TimeRangeAll || got.SortBy != aggregate.SortByLatestActivity {
		t.Fatalf("expected all/latest_activity defaults, got %q/%q", got.TimeRange, got.SortBy)
	}
}

func TestAggregatedEmptyBody(t *testing.T) {
	engine := &usageLogsTestEngine{result: &aggregate.PageResult{Rows: []aggregate.UserAggregate{}}}
	router := newUsageLogsRouter(engine)

	recorder := postAggregated(t, router, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("an empty body must use the defaults, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if engine.calls != 1 {
		t.Fatalf("expected one aggregation call, got %d", engine.calls)
	}
}

func TestAggregatedValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"page":`},
		{name: "negative page", body: `{"page": -1}`},
		{name: "negative limit", body: `{"limit": -5}`},
		{name: "limit over cap", body: `{"limit": 101}`},
		{name: "bad activity filter", body: `{"activity_filter": "extreme"}`},
		{name: "bad user type", body: `{"user_type_filter": "robot"}`},
		{name: "bad time range", body: `{"time_range": "yearly"}`},
		{name: "bad sort key", body: `{"sort_by": "user_name"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := &usageLogsTestEngine{result: &aggregate.PageResult{}}
			router := newUsageLogsRouter(engine)
			recorder := postAggregated(t, router, tc.body)
			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", recorder.Code, recorder.Body.String())
			}
			if engine.calls != 0 {
				t.Fatalf("invalid requests must not reach the engine, got %d calls", engine.calls)
			}
			var payload map[string]any
			if errDecode := json.Unmarshal(recorder.Body.Bytes(), &payload); errDecode != nil {
				t.Fatalf("decode error body: %v", errDecode)
			}
			if success, _ := payload["success"].(bool); success {
				t.Fatal("error responses must carry success=false")
			}
		})
	}
}

func TestAggregatedPassesFilterThrough(t *testing.T) {
	engine := &usageLogsTestEngine{result: &aggregate.PageResult{Rows: []aggregate.UserAggregate{}}}
	router := newUsageLogsRouter(engine)

	body := `{"page": 3, "limit": 25, "search_query": "ali", "activity_filter": "high",
	          "user_type_filter": "all", "sort_by": "usage_count", "time_range": "weekly"}`
	recorder := postAggregated(t, router, body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	got := engine.filter
	want := aggregate.FilterCriteria{
		SearchQuery:    "ali",
		ActivityFilter: "high",
		UserTypeFilter: aggregate.FilterAll,
		TimeRange:      aggregate.TimeRangeWeekly,
		SortBy:         aggregate.SortByUsageCount,
		Page:           3,
		Limit:          25,
	}
	if got != want {
		t.Fatalf("filter mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestAggregatedSuccessShape(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine := &usageLogsTestEngine{result: &aggregate.PageResult{
		Rows: []aggregate.UserAggregate{{
			UserID:              "u-alice",
			UserName:            "Alice Doe",
			UserEmail:           "alice@example.com",
			TotalTokens:         600,
			TotalEstimatedCost:  0.06,
			UsageCount:          3,
			LatestActivity:      now,
			ActivityLevel:       "high",
			ActivityScore:       71,
			UserType:            "external",
			HasCompletedPayment: true,
		}},
		TotalCount:       15,
		GrandTotalTokens: 9000,
		GrandTotalCost:   1.23,
	}}
	router := newUsageLogsRouter(engine)

	recorder := postAggregated(t, router, `{"page": 2, "limit": 1}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var payload struct {
		Success          bool    `json:"success"`
		TotalCount       int     `json:"total_count"`
		GrandTotalTokens int64   `json:"grand_total_tokens"`
		GrandTotalCost   float64 `json:"grand_total_cost"`
		Page             int     `json:"page"`
		Limit            int     `json:"limit"`
		Data             []struct {
			UserID              string  `json:"user_id"`
			UserName            string  `json:"user_name"`
			UserEmail           string  `json:"user_email"`
			TotalTokens         int64   `json:"total_tokens"`
			TotalEstimatedCost  float64 `json:"total_estimated_cost"`
			UsageCount          int     `json:"usage_count"`
			ActivityLevel       string  `json:"activity_level"`
			ActivityScore       int     `json:"activity_score"`
			UserType            string  `json:"user_type"`
			HasCompletedPayment bool    `json:"has_completed_payment"`
		} `json:"data"`
	}
	if errDecode := json.Unmarshal(recorder.Body.Bytes(), &payload); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if !payload.Success {
		t.Fatal("expected success=true")
	}
	if payload.TotalCount != 15 || payload.GrandTotalTokens != 9000 {
		t.Fatalf("unexpected totals: %+v", payload)
	}
	if payload.Page != 2 || payload.Limit != 1 {
		t.Fatalf("response must echo the requested page, got page %d limit %d", payload.Page, payload.Limit)
	}
	if len(payload.Data) != 1 || payload.Data[0].UserID != "u-alice" {
		t.Fatalf("unexpected data: %+v", payload.Data)
	}
	if payload.Data[0].ActivityScore != 71 || !payload.Data[0].HasCompletedPayment {
		t.Fatalf("unexpected row fields: %+v", payload.Data[0])
	}
}

func TestAggregatedEngineFailure(t *testing.T) {
	engine := &usageLogsTestEngine{err: errors.New("both paths down")}
	router := newUsageLogsRouter(engine)

	recorder := postAggregated(t, router, `{}`)
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var payload map[string]any
	if errDecode := json.Unmarshal(recorder.Body.Bytes(), &payload); errDecode != nil {
		t.Fatalf("decode error body: %v", errDecode)
	}
	if payload["error"] != "Failed to fetch usage logs" {
		t.Fatalf("unexpected error message: %v", payload["error"])
	}
}
