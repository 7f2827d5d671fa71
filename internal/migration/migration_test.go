package migration

import (
	"os"
	"testing"

	"github.com/eggnunes/crmidea-sub003/migrations"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/db?sslmode=disable", DatabaseURL("postgres://u:p@localhost:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://u@db/x", DatabaseURL("postgresql://u@db/x"))
	assert.Equal(t, "pgx5://already", DatabaseURL("pgx5://already"))
}

func TestEmbeddedMigrations(t *testing.T) {
	src, err := iofs.New(migrations.FS, ".")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	last := first
	for {
		next, err := src.Next(last)
		if err != nil {
			break
		}
		rc, _, err := src.ReadDown(next)
		require.NoError(t, err, "migration %d has no down file", next)
		rc.Close()
		last = next
	}
	assert.Equal(t, uint(4), last)
}

func TestCommand_Subcommands(t *testing.T) {
	cmd := Command(func() string { return "" })

	names := make([]string, 0, len(cmd.Commands()))
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"up", "down", "version", "force"}, names)

	down, _, err := cmd.Find([]string{"down"})
	require.NoError(t, err)
	assert.Equal(t, "1", down.Flags().Lookup("steps").DefValue)

	up, _, err := cmd.Find([]string{"up"})
	require.NoError(t, err)
	assert.Equal(t, "0", up.Flags().Lookup("steps").DefValue)
}

func TestUp_Integration(t *testing.T) {
	dsn := os.Getenv("DB_URL")
	if dsn == "" {
		t.Skip("DB_URL not set")
	}
	require.NoError(t, Up(dsn))
	require.NoError(t, Up(dsn))
}
