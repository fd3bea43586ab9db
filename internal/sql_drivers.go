package internal

import (
	"strings"

	// database/sql drivers for the sql outcome publisher.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// sqlDriverName maps config aliases to registered database/sql driver names.
func sqlDriverName(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pg":
		return "postgres"
	case "mysql", "mariadb":
		return "mysql"
	default:
		return driver
	}
}
