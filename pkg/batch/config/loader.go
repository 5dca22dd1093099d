package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"zipbatch/pkg/batch/util/exception"
	"zipbatch/pkg/batch/util/logger"
)

// ConfigLoader は設定をロードするためのインターフェースです。
type ConfigLoader interface {
	Load() (*Config, error)
}

// BytesConfigLoader はバイトスライスから設定をロードする ConfigLoader の実装です。
type BytesConfigLoader struct {
	data []byte
}

// NewBytesConfigLoader は新しい BytesConfigLoader のインスタンスを作成します。
func NewBytesConfigLoader(data []byte) *BytesConfigLoader {
	return &BytesConfigLoader{data: data}
}

// Load は埋め込まれたバイトスライスから設定をロードします。
// デフォルト値に YAML を重ね、環境変数で上書きした後にバリデーションを行います。
func (l *BytesConfigLoader) Load() (*Config, error) {
	cfg := NewConfig()

	if err := loadYamlConfig(l.data, cfg); err != nil {
		return nil, exception.NewConfigurationError("config", "YAML設定のパースに失敗しました", err)
	}
	cfg.EmbeddedConfig = l.data

	loadEnvVars(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FileConfigLoader はファイルシステム上の YAML から設定をロードします。
type FileConfigLoader struct {
	fs   afero.Fs
	path string
}

// NewFileConfigLoader は新しい FileConfigLoader のインスタンスを作成します。
func NewFileConfigLoader(fs afero.Fs, path string) *FileConfigLoader {
	return &FileConfigLoader{fs: fs, path: path}
}

// Load は設定ファイルを読み込み、BytesConfigLoader と同じ手順で Config を構築します。
func (l *FileConfigLoader) Load() (*Config, error) {
	data, err := afero.ReadFile(l.fs, l.path)
	if err != nil {
		return nil, exception.NewConfigurationError("config", fmt.Sprintf("設定ファイル '%s' の読み込みに失敗しました", l.path), err)
	}
	logger.Debugf("設定ファイル '%s' を読み込みました。", l.path)
	return NewBytesConfigLoader(data).Load()
}

// Validate は構造体タグと項目間の制約に基づいて設定を検証します。
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return exception.NewConfigurationError("config", "設定値のバリデーションに失敗しました", err)
	}
	if cfg.Writer.Type == "database" && cfg.Database.Type == "" {
		return exception.NewConfigurationError("config", "writer.type が database の場合は database.type が必要です", nil)
	}
	return nil
}

// YAMLデータを Config 構造体にパースする関数
func loadYamlConfig(data []byte, cfg *Config) error {
	if len(data) == 0 {
		return nil
	}
	return yaml.Unmarshal(data, cfg)
}

// 環境変数で個別の設定値を上書きする関数
func loadEnvVars(cfg *Config) {
	// Database 設定
	if v := os.Getenv("DATABASE_TYPE"); v != "" {
		cfg.Database.Type = v
	}
	if v := os.Getenv("DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	setIntFromEnv("DATABASE_PORT", &cfg.Database.Port)
	if v := os.Getenv("DATABASE_DATABASE"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("DATABASE_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DATABASE_SSLMODE"); v != "" {
		cfg.Database.Sslmode = v
	}
	setIntFromEnv("DATABASE_MAX_OPEN_CONNS", &cfg.Database.ConnectionPool.MaxOpenConns)
	setIntFromEnv("DATABASE_MAX_IDLE_CONNS", &cfg.Database.ConnectionPool.MaxIdleConns)
	setIntFromEnv("DATABASE_CONN_MAX_LIFETIME_SECONDS", &cfg.Database.ConnectionPool.ConnMaxLifetimeSeconds)

	// Batch 設定
	if v := os.Getenv("BATCH_JOB_NAME"); v != "" {
		cfg.Batch.JobName = v
	}
	setIntFromEnv("BATCH_CHUNK_SIZE", &cfg.Batch.ChunkSize)
	if v := os.Getenv("BATCH_RESTART_FILE"); v != "" {
		cfg.Batch.RestartFile = v
	}

	// Reader 設定
	if v := os.Getenv("READER_ARCHIVES"); v != "" {
		cfg.Reader.Archives = splitList(v)
	}
	if v := os.Getenv("READER_ENCODING"); v != "" {
		cfg.Reader.Encoding = v
	}

	// Writer 設定
	if v := os.Getenv("WRITER_TYPE"); v != "" {
		cfg.Writer.Type = v
	}
	if v := os.Getenv("WRITER_OUTPUT_PATH"); v != "" {
		cfg.Writer.OutputPath = v
	}

	// System 設定
	if v := os.Getenv("SYSTEM_LOGGING_LEVEL"); v != "" {
		cfg.System.Logging.Level = v
	}
	if v := os.Getenv("SYSTEM_LOGGING_FORMAT"); v != "" {
		cfg.System.Logging.Format = v
	}
}

func setIntFromEnv(key string, dst *int) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warnf("%s の値 '%s' が無効です。デフォルト値または設定ファイルの値を使用します。", key, raw)
		return
	}
	*dst = n
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
