package migrate

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplytrace-backend/pkg/config"
	"github.com/angelmondragon/supplytrace-backend/pkg/db"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
)

func TestMaybeRunDevMigratesSQLite(t *testing.T) {
	ctx := context.Background()
	client, err := db.New(ctx, config.DBConfig{
		Driver: config.DBDriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer client.Close()

	cfg := &config.Config{App: config.AppConfig{Env: config.AppEnvProd}}
	logg := logger.New(logger.Options{ServiceName: "migrate-test"})
	if err := MaybeRunDev(ctx, cfg, logg, client); err != nil {
		t.Fatalf("MaybeRunDev: %v", err)
	}

	for _, table := range []string{"products", "supply_events", "verification_results", "verification_jobs", "ledger_entries", "outbox_events", "outbox_dlq"} {
		if !client.DB().Migrator().HasTable(table) {
			t.Fatalf("expected table %s to exist", table)
		}
	}
}
