package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestInitialSchemaEnforcesOneDecisionPerLevel(t *testing.T) {
	raw, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_init.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "ux_approvals_request_level ON approvals (request_id, approval_level)")
}

func TestMigrateAutoMigratesSqlite(t *testing.T) {
	conn := dbtest.Open(t)
	require.NoError(t, Migrate(conn, config.Config{DBType: "sqlite"}))

	for _, table := range []string{"organizations", "users", "purchase_requests", "request_items", "approvals", "documents", "audit_logs"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
	assert.True(t, conn.Migrator().HasIndex("approvals", "ux_approvals_request_level"))
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
}
