// Package connector は設定に応じたデータベースドライバで接続を確立します。
// 各ドライバのコネクタは init で自身を登録します。
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"zipbatch/pkg/batch/config"
	"zipbatch/pkg/batch/database"
	"zipbatch/pkg/batch/util/exception"
	"zipbatch/pkg/batch/util/logger"
)

// DBConnector は特定のデータベースタイプへの接続を確立するためのインターフェースです。
type DBConnector interface {
	Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error)
}

var (
	mu         sync.RWMutex
	connectors = make(map[string]DBConnector)
)

// RegisterConnector は指定されたタイプ名で DBConnector を登録します。既存の登録は上書きされます。
func RegisterConnector(dbType string, connector DBConnector) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := connectors[dbType]; exists {
		logger.Warnf("DBタイプ '%s' の DBConnector は既に登録されています。上書きします。", dbType)
	}
	connectors[dbType] = connector
}

// RegisteredTypes は登録済みのデータベースタイプを名前順に返します。
func RegisteredTypes() []string {
	mu.RLock()
	defer mu.RUnlock()
	types := make([]string, 0, len(connectors))
	for t := range connectors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// GetSQLDB は登録されたコネクタの中から cfg.Type に対応するものを選択して接続します。
func GetSQLDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	mu.RLock()
	c, ok := connectors[cfg.Type]
	mu.RUnlock()
	if !ok {
		return nil, exception.NewConfigurationError("database", fmt.Sprintf("未対応のデータベースタイプ: %s", cfg.Type), nil)
	}
	return c.Connect(ctx, cfg)
}

// NewDBConnectionFromConfig は設定に基づいて接続を確立し、database.DBConnection として返します。
func NewDBConnectionFromConfig(ctx context.Context, cfg config.DatabaseConfig) (database.DBConnection, error) {
	db, err := GetSQLDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return database.NewSQLDBAdapter(db), nil
}

// openAndPing は driverName で接続を開き、プール設定を適用してから疎通を確認します。
// label はログとエラーメッセージに使用する表示名です。
func openAndPing(ctx context.Context, driverName, label, dsn string, pool config.ConnectionPoolConfig) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, exception.NewResourceUnavailableError("database", fmt.Sprintf("%s への接続に失敗しました", label), err)
	}

	// 接続プール設定を適用
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetimeSeconds > 0 {
		db.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeSeconds) * time.Second)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, exception.NewResourceUnavailableError("database", fmt.Sprintf("%s への Ping に失敗しました", label), err)
	}

	logger.Debugf("%s に正常に接続しました。MaxOpenConns: %d, MaxIdleConns: %d, ConnMaxLifetime: %d秒",
		label, pool.MaxOpenConns, pool.MaxIdleConns, pool.ConnMaxLifetimeSeconds)
	return db, nil
}
