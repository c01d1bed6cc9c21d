package aggregate

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Process applies the filter, computes totals over the filtered set, sorts
// and paginates. Totals always describe the pre-pagination set.
func Process(rows []UserAggregate, filter FilterCriteria) *PageResult {
	filter = filter.Normalized()

	filtered := applyFilter(rows, filter)
	sortRows(filtered, filter.SortBy)

	grandTokens := int64(0)
	grandCost := decimal.Zero
	for _, row := range filtered {
		grandTokens += row.TotalTokens
		grandCost = grandCost.Add(decimal.NewFromFloat(row.TotalEstimatedCost))
	}

	return &PageResult{
		Rows:             paginate(filtered, filter.Page, filter.Limit),
		TotalCount:       len(filtered),
		GrandTotalTokens: grandTokens,
		GrandTotalCost:   grandCost.InexactFloat64(),
	}
}

// applyFilter filters by activity level, then user type, then search.
func applyFilter(rows []UserAggregate, filter FilterCriteria) []UserAggregate {
	out := make([]UserAggregate, 0, len(rows))
	search := strings.ToLower(strings.TrimSpace(filter.SearchQuery))
	for _, row := range rows {
		if filter.ActivityFilter != FilterAll && row.ActivityLevel != filter.ActivityFilter {
			continue
		}
		if filter.UserTypeFilter != FilterAll && row.UserType != filter.UserTypeFilter {
			continue
		}
		if search != "" && !matchesSearch(row, filter.SearchQuery, search) {
			continue
		}
		out = append(out, row)
	}
	return out
}

// matchesSearch matches case-insensitively on the user name or as a plain
// substring of the raw user ID.
func matchesSearch(row UserAggregate, rawQuery, loweredQuery string) bool {
	if strings.Contains(strings.ToLower(row.UserName), loweredQuery) {
		return true
	}
	return strings.Contains(row.UserID, strings.TrimSpace(rawQuery))
}

// sortRows orders rows by the requested key, descending, with a user-ID
// ascending tie-break so both computation paths page identically.
func sortRows(rows []UserAggregate, sortBy string) {
	less := func(a, b UserAggregate) bool { return a.LatestActivity.After(b.LatestActivity) }
	equal := func(a, b UserAggregate) bool { return a.LatestActivity.Equal(b.LatestActivity) }
	switch sortBy {
	case SortByActivityScore:
		less = func(a, b UserAggregate) bool { return a.ActivityScore > b.ActivityScore }
		equal = func(a, b UserAggregate) bool { return a.ActivityScore == b.ActivityScore }
	case SortByUsageCount:
		less = func(a, b UserAggregate) bool { return a.UsageCount > b.UsageCount }
		equal = func(a, b UserAggregate) bool { return a.UsageCount == b.UsageCount }
	case SortByTotalCost:
		less = func(a, b UserAggregate) bool { return a.TotalEstimatedCost > b.TotalEstimatedCost }
		equal = func(a, b UserAggregate) bool { return a.TotalEstimatedCost == b.TotalEstimatedCost }
	}

	sort.Slice(rows, func(i, j int) bool {
		if equal(rows[i], rows[j]) {
			return rows[i].UserID < rows[j].UserID
		}
		return less(rows[i], rows[j])
	})
}

// paginate slices out the requested page. Out-of-range pages yield an empty
// page rather than an error.
func paginate(rows []UserAggregate, page, limit int) []UserAggregate {
	start := (page - 1) * limit
	if start >= len(rows) {
		return []UserAggregate{}
	}
	end := start + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}
