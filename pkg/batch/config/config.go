package config

import (
	"fmt"
	"strings"
)

// EmbeddedConfig は、設定ファイルの内容を保持するためのフィールドです。
// main.go から渡される埋め込み設定を格納します。
type EmbeddedConfig []byte

// ConnectionPoolConfig はデータベースコネクションプールの設定を保持します。
type ConnectionPoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns           int `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetimeSeconds int `yaml:"conn_max_lifetime_seconds" validate:"gte=0"`
}

// DatabaseConfig は writer.type が database の場合に使用する接続設定です。
type DatabaseConfig struct {
	Type      string `yaml:"type" validate:"omitempty,oneof=postgres mysql redshift snowflake"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port" validate:"gte=0,lte=65535"`
	Database  string `yaml:"database"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Sslmode   string `yaml:"sslmode"`
	Account   string `yaml:"account"`   // snowflake のみ
	Schema    string `yaml:"schema"`    // snowflake のみ
	Warehouse string `yaml:"warehouse"` // snowflake のみ
	// アプリケーション固有のマイグレーションファイルのパス。空の場合は組み込みのマイグレーションを使用します。
	AppMigrationPath string               `yaml:"app_migration_path"`
	ConnectionPool   ConnectionPoolConfig `yaml:"connection_pool"`
}

// ConnectionString はドライバに渡す DSN を返します。
func (c DatabaseConfig) ConnectionString() string {
	switch strings.ToLower(c.Type) {
	case "postgres", "redshift":
		sslmode := c.Sslmode
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			c.User, c.Password, c.Host, c.Port, c.Database, sslmode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "snowflake":
		dsn := fmt.Sprintf("%s:%s@%s/%s", c.User, c.Password, c.Account, c.Database)
		if c.Schema != "" {
			dsn += "/" + c.Schema
		}
		if c.Warehouse != "" {
			dsn += "?warehouse=" + c.Warehouse
		}
		return dsn
	default:
		return ""
	}
}

// ItemRetryConfig はアイテムレベルのリトライ設定です。
type ItemRetryConfig struct {
	MaxAttempts     int `yaml:"max_attempts" validate:"gte=0"`
	InitialInterval int `yaml:"initial_interval" validate:"gte=0"` // ミリ秒
}

type BatchConfig struct {
	JobName     string          `yaml:"job_name" validate:"required"`
	ChunkSize   int             `yaml:"chunk_size" validate:"gte=1"`
	ItemRetry   ItemRetryConfig `yaml:"item_retry"`
	RestartFile string          `yaml:"restart_file"` // 空の場合はリスタート情報を保存しない
}

// ReaderConfig はアーカイブ読み込みの設定です。
type ReaderConfig struct {
	// 読み込むアーカイブのパスまたは glob パターン。記述順に読み込まれます。
	Archives    []string `yaml:"archives"`
	Encoding    string   `yaml:"encoding"`
	LinesToSkip int      `yaml:"lines_to_skip" validate:"gte=0"`
	Comments    []string `yaml:"comments"`
	Strict      bool     `yaml:"strict"`
	SaveState   bool     `yaml:"save_state"`
	MaxLineSize int      `yaml:"max_line_size" validate:"gte=0"`
}

// ProcessorConfig は行の加工設定です。
type ProcessorConfig struct {
	Trim           bool `yaml:"trim"`
	SkipBlankLines bool `yaml:"skip_blank_lines"`
}

// WriterConfig は出力先の設定です。
type WriterConfig struct {
	Type       string `yaml:"type" validate:"required,oneof=stdout file database"`
	OutputPath string `yaml:"output_path" validate:"required_if=Type file"`
	Append     bool   `yaml:"append"`
	Table      string `yaml:"table" validate:"required_if=Type database"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"required"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

type Config struct {
	Database       DatabaseConfig  `yaml:"database"`
	Batch          BatchConfig     `yaml:"batch"`
	Reader         ReaderConfig    `yaml:"reader"`
	Processor      ProcessorConfig `yaml:"processor"`
	Writer         WriterConfig    `yaml:"writer"`
	System         SystemConfig    `yaml:"system"`
	EmbeddedConfig EmbeddedConfig  `yaml:"-"` // 埋め込み設定を格納するためのフィールド。YAMLからは読み込まない。
}

// NewConfig はデフォルト値を設定した Config の新しいインスタンスを返します。
func NewConfig() *Config {
	return &Config{
		System: SystemConfig{
			Timezone: "UTC",
			Logging:  LoggingConfig{Level: "INFO", Format: "console"},
		},
		Batch: BatchConfig{
			JobName:   "zipLinesJob",
			ChunkSize: 10,
			ItemRetry: ItemRetryConfig{
				MaxAttempts:     3,
				InitialInterval: 100,
			},
		},
		Reader: ReaderConfig{
			Encoding:    "UTF-8",
			Strict:      true,
			MaxLineSize: 1024 * 1024,
		},
		Writer: WriterConfig{
			Type:  "stdout",
			Table: "archive_lines",
		},
	}
}
