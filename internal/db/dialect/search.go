package dialect

// NameContains returns a substring-match condition on column with one bind
// placeholder. Case folding differs per engine:
//
//	SQLite:  column LIKE ?   (ASCII case-insensitive by default)
//	Postgres: column ILIKE ?
//
// Bind the value through ContainsArg so the pattern wrap stays in one place.
func NameContains(driver, column string) string {
	if IsPostgres(driver) {
		return column + " ILIKE ?"
	}
	return column + " LIKE ?"
}

// ContainsArg wraps a raw query string into the pattern NameContains expects.
func ContainsArg(query string) string {
	return "%" + query + "%"
}
