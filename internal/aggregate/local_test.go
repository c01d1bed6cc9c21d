package aggregate

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/seedframe/adminapi/internal/identity"
	"github.com/seedframe/adminapi/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupAggregateDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:aggregate_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(
		&models.UsageEvent{},
		&models.UserProfile{},
		&models.DirectoryUser{},
		&models.PaymentRecord{},
	); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return db
}

func newTestLocalEngine(db *gorm.DB, now time.Time) *LocalEngine {
	resolver := identity.NewResolver(
		identity.NewGormProfileStore(db),
		identity.NewGormDirectory(db),
		nil,
	)
	engine := NewLocalEngine(db, resolver)
	engine.now = func() time.Time { return now }
	return engine
}

func mustCreate(t *testing.T, db *gorm.DB, value any) {
	t.Helper()
	if errCreate := db.Create(value).Error; errCreate != nil {
		t.Fatalf("create fixture: %v", errCreate)
	}
}

func costOf(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func TestLocalEngineGroupsEventsPerUser(t *testing.T) {
	db := setupAggregateDB(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	mustCreate(t, db, &models.DirectoryUser{UserID: "u-alice", Email: "alice@example.com", DisplayName: "Alice Doe"})
	for i, tokens := range []int64{100, 200, 300} {
		mustCreate(t, db, &models.UsageEvent{
			UserID:           "u-alice",
			PromptTokens:     tokens / 2,
			CompletionTokens: tokens - tokens/2,
			TotalTokens:      tokens,
			EstimatedCost:    costOf(int64(i+1)), // 0.01, 0.02, 0.03
			CreatedAt:        now.Add(-time.Duration(i) * 24 * time.Hour),
		})
	}

	engine := newTestLocalEngine(db, now)
	result, errAgg := engine.Aggregate(context.Background(), FilterCriteria{UserTypeFilter: FilterAll})
	if errAgg != nil {
		t.Fatalf("aggregate: %v", errAgg)
	}
	if result.TotalCount != 1 || len(result.Rows) != 1 {
		t.Fatalf("expected a single aggregate, got count %d rows %d", result.TotalCount, len(result.Rows))
	}

	row := result.Rows[0]
	if row.UsageCount != 3 {
		t.Fatalf("expected usage count 3, got %d", row.UsageCount)
	}
	if row.TotalTokens != 600 {
		t.Fatalf("expected 600 total tokens, got %d", row.TotalTokens)
	}
	if math.Abs(row.TotalEstimatedCost-0.06) > 1e-9 {
		t.Fatalf("expected cost 0.06, got %v", row.TotalEstimatedCost)
	}
	if !row.LatestActivity.Equal(now) {
		t.Fatalf("expected latest activity %v, got %v", now, row.LatestActivity)
	}
	if !row.EarliestActivity.Equal(now.Add(-2 * 24 * time.Hour)) {
		t.Fatalf("unexpected earliest activity %v", row.EarliestActivity)
	}
	if row.DaysSinceLastActivity != 0 || row.ActivityLevel != "high" {
		t.Fatalf("expected fresh high-activity user, got %d days / %s", row.DaysSinceLastActivity, row.ActivityLevel)
	}
	if row.UserName != "Alice Doe" || row.UserEmail != "alice@example.com" {
		t.Fatalf("unexpected identity %q / %q", row.UserName, row.UserEmail)
	}
	if row.UserType != identity.UserTypeExternal {
		t.Fatalf("expected external user, got %s", row.UserType)
	}
	if result.GrandTotalTokens != 600 {
		t.Fatalf("expected grand total 600, got %d", result.GrandTotalTokens)
	}
}

func TestLocalEngineTimeWindow(t *testing.T) {
	db := setupAggregateDB(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	mustCreate(t, db, &models.UsageEvent{UserID: "u-fresh", TotalTokens: 100, CreatedAt: now.Add(-2 * 24 * time.Hour)})
	mustCreate(t, db, &models.UsageEvent{UserID: "u-stale", TotalTokens: 100, CreatedAt: now.Add(-20 * 24 * time.Hour)})
	mustCreate(t, db, &models.UsageEvent{UserID: "u-ancient", TotalTokens: 100, CreatedAt: now.Add(-90 * 24 * time.Hour)})

	engine := newTestLocalEngine(db, now)

	weekly, errWeekly := engine.Aggregate(context.Background(), FilterCriteria{TimeRange: TimeRangeWeekly, UserTypeFilter: FilterAll})
	if errWeekly != nil {
		t.Fatalf("weekly aggregate: %v", errWeekly)
	}
	if weekly.TotalCount != 1 || weekly.Rows[0].UserID != "u-fresh" {
		t.Fatalf("expected only u-fresh in the weekly window, got %+v", weekly.Rows)
	}

	monthly, errMonthly := engine.Aggregate(context.Background(), FilterCriteria{TimeRange: TimeRangeMonthly, UserTypeFilter: FilterAll})
	if errMonthly != nil {
		t.Fatalf("monthly aggregate: %v", errMonthly)
	}
	if monthly.TotalCount != 2 {
		t.Fatalf("expected 2 users in the monthly window, got %d", monthly.TotalCount)
	}

	all, errAll := engine.Aggregate(context.Background(), FilterCriteria{UserTypeFilter: FilterAll})
	if errAll != nil {
		t.Fatalf("full aggregate: %v", errAll)
	}
	if all.TotalCount != 3 {
		t.Fatalf("expected 3 users over the full history, got %d", all.TotalCount)
	}
}

func TestLocalEnginePaymentAnnotation(t *testing.T) {
	db := setupAggregateDB(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	mustCreate(t, db, &models.UsageEvent{UserID: "u-paid", TotalTokens: 10, CreatedAt: now})
	mustCreate(t, db, &models.UsageEvent{UserID: "u-unpaid", TotalTokens: 10, CreatedAt: now})
	mustCreate(t, db, &models.PaymentRecord{UserID: "u-paid", Status: models.PaymentStatusCompleted, Amount: costOf(500)})
	mustCreate(t, db, &models.PaymentRecord{UserID: "u-unpaid", Status: models.PaymentStatusFailed, Amount: costOf(500)})

	engine := newTestLocalEngine(db, now)
	result, errAgg := engine.Aggregate(context.Background(), FilterCriteria{UserTypeFilter: FilterAll})
	if errAgg != nil {
		t.Fatalf("aggregate: %v", errAgg)
	}

	byID := map[string]UserAggregate{}
	for _, row := range result.Rows {
		byID[row.UserID] = row
	}
	if !byID["u-paid"].HasCompletedPayment {
		t.Fatal("expected u-paid flagged as having completed a payment")
	}
	if byID["u-unpaid"].HasCompletedPayment {
		t.Fatal("a failed payment must not flag the user")
	}
}

func TestLocalEngineIdentityPlaceholders(t *testing.T) {
	db := setupAggregateDB(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// No profile row and no directory entry for this ID.
	mustCreate(t, db, &models.UsageEvent{UserID: "orphan-user-123", TotalTokens: 10, CreatedAt: now})

	engine := newTestLocalEngine(db, now)
	result, errAgg := engine.Aggregate(context.Background(), FilterCriteria{UserTypeFilter: FilterAll})
	if errAgg != nil {
		t.Fatalf("aggregate: %v", errAgg)
	}

	row := result.Rows[0]
	if row.UserName != "User orphan-u" {
		t.Fatalf("expected placeholder name, got %q", row.UserName)
	}
	if row.UserEmail != "user-orphan-u@unknown.com" {
		t.Fatalf("expected placeholder email, got %q", row.UserEmail)
	}
	if row.UserType != identity.UserTypeExternal {
		t.Fatalf("placeholder identities classify as external, got %s", row.UserType)
	}
}

func TestLocalEngineDefaultFilterHidesInternalUsers(t *testing.T) {
	db := setupAggregateDB(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	mustCreate(t, db, &models.DirectoryUser{UserID: "u-staff", Email: "staff@seedframe.com", DisplayName: "Staff"})
	mustCreate(t, db, &models.DirectoryUser{UserID: "u-cust", Email: "cust@example.com", DisplayName: "Customer"})
	mustCreate(t, db, &models.UsageEvent{UserID: "u-staff", TotalTokens: 10, CreatedAt: now})
	mustCreate(t, db, &models.UsageEvent{UserID: "u-cust", TotalTokens: 10, CreatedAt: now})

	engine := newTestLocalEngine(db, now)
	result, errAgg := engine.Aggregate(context.Background(), DefaultFilter())
	if errAgg != nil {
		t.Fatalf("aggregate: %v", errAgg)
	}
	if result.TotalCount != 1 || result.Rows[0].UserID != "u-cust" {
		t.Fatalf("default filter should keep only external users, got %+v", result.Rows)
	}
}
