package connector

import (
	"context"
	"database/sql"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake ドライバ

	"zipbatch/pkg/batch/config"
)

// snowflakeConnector は Snowflake への接続を確立する DBConnector の実装です。
type snowflakeConnector struct{}

// Connect は gosnowflake ドライバで接続を確立し、*sql.DB を返します。
func (c *snowflakeConnector) Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	return openAndPing(ctx, "snowflake", "Snowflake", cfg.ConnectionString(), cfg.ConnectionPool)
}

func init() {
	RegisterConnector("snowflake", &snowflakeConnector{})
}
