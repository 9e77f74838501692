package provision

// =============================================================================
// Database Connection Parameters
// =============================================================================

// DatabaseParams are the connection parameters the application service
// receives via environment variables, also consumed by the host-side
// readiness probe.
type DatabaseParams struct {
	Host     string
	Name     string
	User     string
	Password string
}

// Complete reports whether all four parameters are present.
func (p DatabaseParams) Complete() bool {
	return p.Host != "" && p.Name != "" && p.User != "" && p.Password != ""
}

// ExtractDatabaseParams pulls the DB_* connection parameters out of a
// service's (already substituted) environment.
func ExtractDatabaseParams(env map[string]string) DatabaseParams {
	return DatabaseParams{
		Host:     env["DB_HOST"],
		Name:     env["DB_NAME"],
		User:     env["DB_USER"],
		Password: env["DB_PASS"],
	}
}
