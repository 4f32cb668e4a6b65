// Package migrations embeds the device service schema into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/mcs-device-service/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
