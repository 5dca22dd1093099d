package connector

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL ドライバ。Redshift も PostgreSQL 互換のためこのドライバを使用

	"zipbatch/pkg/batch/config"
)

// postgresConnector は PostgreSQL 互換のデータベースへの接続を確立する DBConnector の実装です。
type postgresConnector struct {
	label string
}

// Connect は pq ドライバで接続を確立し、*sql.DB を返します。
func (c *postgresConnector) Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	return openAndPing(ctx, "postgres", c.label, cfg.ConnectionString(), cfg.ConnectionPool)
}

func init() {
	RegisterConnector("postgres", &postgresConnector{label: "PostgreSQL"})
	RegisterConnector("redshift", &postgresConnector{label: "Redshift"})
}
