package dialect

import "fmt"

// NowMinusDays returns the SQL expression for "current time minus N days",
// where daysExpr is a parameter placeholder (e.g., "?") for the number of days.
//
//	SQLite:   datetime('now', '-' || ? || ' days')
//	Postgres: NOW() - (? || ' days')::interval
func NowMinusDays(driver, daysExpr string) string {
	if IsPostgres(driver) {
		return fmt.Sprintf("NOW() - (%s || ' days')::interval", daysExpr)
	}
	return fmt.Sprintf("datetime('now', '-' || %s || ' days')", daysExpr)
}
