package db

import (
	"fmt"
	"strings"

	"github.com/seedframe/adminapi/internal/models"

	"gorm.io/gorm"
)

// Migrate creates or updates the tables this service reads.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.UsageEvent{},
		&models.UserProfile{},
		&models.DirectoryUser{},
		&models.PaymentRecord{},
	)
}

// EnsureAggregateProcedure installs the remote rollup function on PostgreSQL.
// SQLite has no stored procedures; callers detect the missing function and
// aggregate locally.
func EnsureAggregateProcedure(conn *gorm.DB, internalDomains []string) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if !IsPostgres(conn) {
		return nil
	}
	return conn.Exec(AggregateProcedureDDL(internalDomains)).Error
}

// AggregateProcedureDDL renders the rollup function. The function mirrors the
// in-process fallback path exactly: grouping, identity tiers, scoring,
// filtering, sorting with a user-ID tie-break, pagination, and grand totals
// duplicated onto every row.
func AggregateProcedureDDL(internalDomains []string) string {
	return fmt.Sprintf(`
CREATE OR REPLACE FUNCTION get_aggregated_usage_logs(
    search_query text DEFAULT '',
    activity_level_filter text DEFAULT '',
    page_number integer DEFAULT 1,
    page_size integer DEFAULT 10,
    user_type_filter text DEFAULT 'external',
    sort_by text DEFAULT 'latest_activity'
)
RETURNS TABLE (
    user_id text,
    user_name text,
    user_email text,
    total_prompt_tokens bigint,
    total_completion_tokens bigint,
    total_tokens bigint,
    total_estimated_cost numeric,
    usage_count integer,
    earliest_activity timestamptz,
    latest_activity timestamptz,
    has_completed_payment boolean,
    activity_level text,
    days_since_last_activity integer,
    activity_score numeric,
    user_type text,
    total_count bigint,
    grand_total_tokens bigint,
    grand_total_cost numeric
)
LANGUAGE sql STABLE
AS $func$
WITH grouped AS (
    SELECT e.user_id AS uid,
           SUM(e.prompt_tokens)::bigint AS prompt_tokens,
           SUM(e.completion_tokens)::bigint AS completion_tokens,
           SUM(e.total_tokens)::bigint AS tokens,
           SUM(e.estimated_cost)::numeric AS cost,
           COUNT(*)::int AS events,
           MIN(e.created_at) AS earliest,
           MAX(e.created_at) AS latest
    FROM usage_events e
    GROUP BY e.user_id
),
identified AS (
    SELECT g.*,
           COALESCE(
               NULLIF(BTRIM(p.full_name), ''),
               NULLIF(BTRIM(d.display_name), ''),
               NULLIF(BTRIM(d.metadata->>'full_name'), ''),
               NULLIF(BTRIM(d.metadata->>'name'), ''),
               NULLIF(BTRIM(d.metadata->>'display_name'), ''),
               CASE WHEN NULLIF(BTRIM(d.metadata->>'first_name'), '') IS NOT NULL
                     AND NULLIF(BTRIM(d.metadata->>'last_name'), '') IS NOT NULL
                    THEN BTRIM(d.metadata->>'first_name') || ' ' || BTRIM(d.metadata->>'last_name')
               END,
               NULLIF(BTRIM(d.metadata->>'first_name'), ''),
               NULLIF(BTRIM(d.metadata->>'last_name'), ''),
               NULLIF(BTRIM(d.metadata->>'given_name'), ''),
               NULLIF(BTRIM(d.metadata->>'family_name'), ''),
               NULLIF(BTRIM(d.metadata->>'preferred_username'), ''),
               NULLIF(BTRIM(d.metadata->>'nickname'), ''),
               CASE WHEN position('@' in BTRIM(d.email)) > 1
                     AND length(split_part(BTRIM(d.email), '@', 1)) > 2
                     AND split_part(BTRIM(d.email), '@', 1) ~ '^[[:alpha:]]'
                    THEN upper(left(translate(split_part(BTRIM(d.email), '@', 1), '._-', '   '), 1))
                         || substr(translate(split_part(BTRIM(d.email), '@', 1), '._-', '   '), 2)
               END,
               'User ' || left(g.uid, 8)
           ) AS display_name,
           COALESCE(NULLIF(BTRIM(d.email), ''), 'user-' || left(g.uid, 8) || '@unknown.com') AS email,
           (pay.uid IS NOT NULL) AS paid
    FROM grouped g
    LEFT JOIN user_profiles p ON p.user_id = g.uid
    LEFT JOIN directory_users d ON d.user_id = g.uid
    LEFT JOIN (
        SELECT DISTINCT pr.user_id AS uid
        FROM payment_records pr
        WHERE pr.status = 'completed'
    ) pay ON pay.uid = g.uid
),
scored AS (
    SELECT i.*,
           GREATEST(FLOOR(EXTRACT(EPOCH FROM (now() - i.latest)) / 86400)::int, 0) AS days
    FROM identified i
),
leveled AS (
    SELECT s.*,
           CASE WHEN s.days <= 2 THEN 'high'
                WHEN s.days = 3 THEN 'medium'
                ELSE 'low'
           END AS level,
           LEAST(GREATEST(100 - s.days * 2, 0), 100) AS recency,
           LEAST(GREATEST(s.events * 5, 0), 100) AS frequency,
           LEAST(GREATEST((s.tokens / 1000000)::int, 0), 100) AS volume
    FROM scored s
),
typed AS (
    SELECT l.*,
           FLOOR(l.recency * 0.5 + l.frequency * 0.3 + l.volume * 0.2) AS score,
           CASE WHEN %s THEN 'internal' ELSE 'external' END AS utype
    FROM leveled l
),
filtered AS (
    SELECT t.*
    FROM typed t
    WHERE (activity_level_filter = '' OR activity_level_filter = 'all' OR t.level = activity_level_filter)
      AND (user_type_filter = '' OR user_type_filter = 'all' OR t.utype = user_type_filter)
      AND (BTRIM(search_query) = ''
           OR position(lower(BTRIM(search_query)) in lower(t.display_name)) > 0
           OR position(BTRIM(search_query) in t.uid) > 0)
)
SELECT f.uid,
       f.display_name,
       f.email,
       f.prompt_tokens,
       f.completion_tokens,
       f.tokens,
       f.cost,
       f.events,
       f.earliest,
       f.latest,
       f.paid,
       f.level,
       f.days,
       f.score,
       f.utype,
       COUNT(*) OVER ()::bigint,
       COALESCE(SUM(f.tokens) OVER (), 0)::bigint,
       COALESCE(SUM(f.cost) OVER (), 0)::numeric
FROM filtered f
ORDER BY
    CASE WHEN sort_by = 'activity_score' THEN f.score END DESC,
    CASE WHEN sort_by = 'usage_count' THEN f.events END DESC,
    CASE WHEN sort_by = 'total_cost' THEN f.cost END DESC,
    CASE WHEN sort_by NOT IN ('activity_score', 'usage_count', 'total_cost') THEN f.latest END DESC,
    f.uid ASC
LIMIT page_size OFFSET (GREATEST(page_number, 1) - 1) * page_size
$func$;
`, internalDomainPredicate(internalDomains))
}

// internalDomainPredicate renders the internal-domain suffix match over the
// resolved email's domain part.
func internalDomainPredicate(internalDomains []string) string {
	var clauses []string
	for _, domain := range internalDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		quoted := quoteLiteral(domain)
		dotted := quoteLiteral("." + domain)
		clauses = append(clauses,
			fmt.Sprintf("lower(split_part(l.email, '@', 2)) = %s", quoted),
			fmt.Sprintf("right(lower(split_part(l.email, '@', 2)), length(%s)) = %s", dotted, dotted),
		)
	}
	if len(clauses) == 0 {
		return "FALSE"
	}
	return strings.Join(clauses, " OR ")
}

// quoteLiteral quotes a string as a SQL literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
