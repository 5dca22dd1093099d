package connector

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql" // MySQL ドライバ

	"zipbatch/pkg/batch/config"
)

// mysqlConnector はMySQLデータベースへの接続を確立するDBConnectorの実装です。
type mysqlConnector struct{}

// Connect はMySQLデータベースへの接続を確立し、*sql.DBを返します。
func (c *mysqlConnector) Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	return openAndPing(ctx, "mysql", "MySQL", cfg.ConnectionString(), cfg.ConnectionPool)
}

func init() {
	RegisterConnector("mysql", &mysqlConnector{})
}
