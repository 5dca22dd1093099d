package database_test

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zipbatch/pkg/batch/database"
)

func TestMigrationURL(t *testing.T) {
	u, err := database.MigrationURL("postgres", "postgres://u:p@localhost:5432/db?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/db?sslmode=disable&x-migrations-table="+database.MigrationsTable, u)

	u, err = database.MigrationURL("mysql", "u:p@tcp(localhost:3306)/db?parseTime=true")
	require.NoError(t, err)
	assert.Equal(t, "mysql://u:p@tcp(localhost:3306)/db?parseTime=true&x-migrations-table="+database.MigrationsTable, u)

	_, err = database.MigrationURL("oracle", "dsn")
	assert.Error(t, err)
}

func TestRunMigrations_SkipsSnowflake(t *testing.T) {
	assert.NoError(t, database.RunMigrations("snowflake", "u:p@account/db", ""))
}

func TestRunMigrations_UnsupportedType(t *testing.T) {
	assert.Error(t, database.RunMigrations("sqlite", "file.db", ""))
}

func TestEmbeddedMigrationDir(t *testing.T) {
	assert.Equal(t, "mysql", database.EmbeddedMigrationDir("MySQL"))
	assert.Equal(t, "postgres", database.EmbeddedMigrationDir("redshift"))
	assert.Equal(t, "postgres", database.EmbeddedMigrationDir("postgres"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	for _, dir := range []string{"postgres", "mysql"} {
		ups, err := fs.Glob(database.EmbeddedMigrations(), "migrations/"+dir+"/*.up.sql")
		require.NoError(t, err)
		downs, err := fs.Glob(database.EmbeddedMigrations(), "migrations/"+dir+"/*.down.sql")
		require.NoError(t, err)
		assert.NotEmpty(t, ups, dir)
		assert.Len(t, downs, len(ups), dir)
	}
}
