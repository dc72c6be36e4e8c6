package auth

import (
	"embed"
	"io/fs"
)

//go:embed data/roles.yaml
var defaultRolesYAML []byte

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the SQL migrations for the given dialect
// directory: sqlite, postgres or mysql.
func GetMigrationsFS(dialect string) (fs.FS, error) {
	return fs.Sub(migrationsFS, "data/sql/migrations/"+dialect)
}

// DefaultRolesYAML returns the embedded role catalog
func DefaultRolesYAML() []byte {
	out := make([]byte, len(defaultRolesYAML))
	copy(out, defaultRolesYAML)
	return out
}
