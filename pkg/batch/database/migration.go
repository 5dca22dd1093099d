package database

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"    // MySQL ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // PostgreSQL および Redshift ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/source/file"       // ファイルソースドライバを登録
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"zipbatch/pkg/batch/util/exception"
	"zipbatch/pkg/batch/util/logger"
)

// MigrationsTable はマイグレーション履歴を記録するテーブル名です。
const MigrationsTable = "zipbatch_schema_migrations"

//go:embed migrations
var embeddedMigrations embed.FS

// MigrationURL は golang-migrate が期待する形式のデータベース URL を返します。
// connectionString は config.DatabaseConfig.ConnectionString() の形式です。
func MigrationURL(dbType, connectionString string) (string, error) {
	var databaseURL string
	switch strings.ToLower(dbType) {
	case "postgres", "redshift":
		databaseURL = connectionString
	case "mysql":
		databaseURL = "mysql://" + connectionString
	default:
		return "", exception.NewBatchErrorf("migration", "マイグレーションに対応していないデータベースタイプ: %s", dbType)
	}
	if strings.Contains(databaseURL, "?") {
		databaseURL += "&"
	} else {
		databaseURL += "?"
	}
	return databaseURL + "x-migrations-table=" + MigrationsTable, nil
}

// RunMigrations は出力テーブルのマイグレーションを実行します。
// migrationsPath が空の場合は組み込みのマイグレーションを使用します。
// snowflake はマイグレーションの対象外で、テーブルは事前に作成されている必要があります。
func RunMigrations(dbType, connectionString, migrationsPath string) error {
	if strings.EqualFold(dbType, "snowflake") {
		logger.Infof("DBタイプ %s ではマイグレーションを実行しません。出力テーブルは事前に作成してください。", dbType)
		return nil
	}
	databaseURL, err := MigrationURL(dbType, connectionString)
	if err != nil {
		return err
	}

	var m *migrate.Migrate
	if migrationsPath != "" {
		logger.Infof("データベースマイグレーションを開始します。DBタイプ: %s, マイグレーションパス: %s", dbType, migrationsPath)
		m, err = migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	} else {
		dir := "migrations/" + EmbeddedMigrationDir(dbType)
		logger.Infof("データベースマイグレーションを開始します。DBタイプ: %s, 組み込みマイグレーション: %s", dbType, dir)
		src, srcErr := iofs.New(embeddedMigrations, dir)
		if srcErr != nil {
			return exception.NewBatchError("migration", "組み込みマイグレーションの読み込みに失敗しました", srcErr, false, false)
		}
		m, err = migrate.NewWithSourceInstance("iofs", src, databaseURL)
	}
	if err != nil {
		return exception.NewBatchError("migration", "マイグレーションインスタンスの作成に失敗しました", err, false, false)
	}
	defer m.Close()

	if err = m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Infof("マイグレーションは不要です。データベースは最新の状態です。")
			return nil
		}
		return exception.NewBatchError("migration", "マイグレーションの実行に失敗しました", err, false, false)
	}

	logger.Infof("データベースマイグレーションが正常に完了しました。")
	return nil
}

// EmbeddedMigrationDir はデータベースタイプに対応する組み込みマイグレーションのディレクトリ名を返します。
func EmbeddedMigrationDir(dbType string) string {
	if strings.EqualFold(dbType, "mysql") {
		return "mysql"
	}
	return "postgres"
}

// EmbeddedMigrations は組み込みのマイグレーションファイルを返します。
func EmbeddedMigrations() fs.FS {
	return embeddedMigrations
}
