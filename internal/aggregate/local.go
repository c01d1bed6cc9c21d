package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/seedframe/adminapi/internal/identity"
	"github.com/seedframe/adminapi/internal/models"
	"github.com/seedframe/adminapi/internal/scoring"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// LocalEngine computes aggregates in-process from raw usage events. It is the
// fallback path and the only path able to apply time windows.
type LocalEngine struct {
	db       *gorm.DB
	resolver *identity.Resolver
	now      func() time.Time
}

// NewLocalEngine constructs a LocalEngine.
func NewLocalEngine(db *gorm.DB, resolver *identity.Resolver) *LocalEngine {
	return &LocalEngine{db: db, resolver: resolver, now: time.Now}
}

// eventGroup accumulates one user's events before scoring.
type eventGroup struct {
	count            int
	promptTokens     int64
	completionTokens int64
	totalTokens      int64
	cost             decimal.Decimal
	earliest         time.Time
	latest           time.Time
}

// Aggregate implements Engine by pulling raw events and payment annotations
// concurrently, grouping per user, resolving identities, scoring, and running
// the filtered set through the query processor.
func (e *LocalEngine) Aggregate(ctx context.Context, filter FilterCriteria) (*PageResult, error) {
	filter = filter.Normalized()
	now := e.now().UTC()

	var since time.Time
	switch filter.TimeRange {
	case TimeRangeWeekly:
		since = now.Add(-7 * 24 * time.Hour)
	case TimeRangeMonthly:
		since = now.Add(-30 * 24 * time.Hour)
	}

	var events []models.UsageEvent
	paid := map[string]struct{}{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q := e.db.WithContext(gctx).Model(&models.UsageEvent{})
		if !since.IsZero() {
			q = q.Where("created_at >= ?", since)
		}
		if errFind := q.Find(&events).Error; errFind != nil {
			return fmt.Errorf("load usage events: %w", errFind)
		}
		return nil
	})
	g.Go(func() error {
		// Payment annotation is enrichment; its failure degrades the flag
		// rather than failing the aggregation.
		var paidIDs []string
		if errPluck := e.db.WithContext(gctx).Model(&models.PaymentRecord{}).
			Distinct().
			Where("status = ?", models.PaymentStatusCompleted).
			Pluck("user_id", &paidIDs).Error; errPluck != nil {
			log.WithError(errPluck).Warn("aggregate: payment lookup failed, has_completed_payment degraded")
			return nil
		}
		for _, id := range paidIDs {
			paid[id] = struct{}{}
		}
		return nil
	})
	if errWait := g.Wait(); errWait != nil {
		return nil, errWait
	}

	groups := map[string]*eventGroup{}
	for _, ev := range events {
		group, ok := groups[ev.UserID]
		if !ok {
			group = &eventGroup{earliest: ev.CreatedAt, latest: ev.CreatedAt}
			groups[ev.UserID] = group
		}
		group.count++
		group.promptTokens += ev.PromptTokens
		group.completionTokens += ev.CompletionTokens
		group.totalTokens += ev.TotalTokens
		group.cost = group.cost.Add(ev.EstimatedCost)
		if ev.CreatedAt.Before(group.earliest) {
			group.earliest = ev.CreatedAt
		}
		if ev.CreatedAt.After(group.latest) {
			group.latest = ev.CreatedAt
		}
	}

	userIDs := make([]string, 0, len(groups))
	for id := range groups {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	identities := e.resolver.Resolve(ctx, userIDs)

	rows := make([]UserAggregate, 0, len(groups))
	for _, id := range userIDs {
		group := groups[id]
		score := scoring.Score(group.count, group.totalTokens, group.latest, now)
		ident := identities[id]
		_, hasPaid := paid[id]
		rows = append(rows, UserAggregate{
			UserID:                id,
			UserName:              ident.Name,
			UserEmail:             ident.Email,
			TotalPromptTokens:     group.promptTokens,
			TotalCompletionTokens: group.completionTokens,
			TotalTokens:           group.totalTokens,
			TotalEstimatedCost:    group.cost.InexactFloat64(),
			UsageCount:            group.count,
			EarliestActivity:      group.earliest,
			LatestActivity:        group.latest,
			HasCompletedPayment:   hasPaid,
			ActivityLevel:         score.ActivityLevel,
			DaysSinceLastActivity: score.DaysSinceLastActivity,
			ActivityScore:         score.ActivityScore,
			UserType:              ident.UserType,
		})
	}

	return Process(rows, filter), nil
}
