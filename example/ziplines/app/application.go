// Package app は zipLinesJob の組み立てと実行を行います。
package app

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"zipbatch/pkg/batch/config"
	"zipbatch/pkg/batch/database"
	"zipbatch/pkg/batch/database/connector"
	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/job/incrementer"
	"zipbatch/pkg/batch/job/joblauncher"
	joblistener "zipbatch/pkg/batch/job/listener"
	"zipbatch/pkg/batch/job/runner"
	"zipbatch/pkg/batch/repository"
	"zipbatch/pkg/batch/resource"
	"zipbatch/pkg/batch/step"
	steplistener "zipbatch/pkg/batch/step/listener"
	"zipbatch/pkg/batch/step/processor"
	"zipbatch/pkg/batch/step/reader"
	"zipbatch/pkg/batch/step/writer"
	"zipbatch/pkg/batch/util/exception"
	"zipbatch/pkg/batch/util/logger"
)

const (
	stepName   = "zipLinesStep"
	readerName = "zipReader"
	writerName = "lineWriter"
)

// Options はコマンドラインから渡される値です。ゼロ値の項目は設定ファイルの値を上書きしません。
type Options struct {
	EnvFile     string
	ConfigPath  string
	Archives    []string
	Writer      string
	Output      string
	Encoding    string
	LogLevel    string
	LogFormat   string
	RestartFile string
	ChunkSize   int

	// Fs はアーカイブ、出力ファイル、リスタートファイル、設定ファイルの読み書きに使用します。nil の場合は OS のファイルシステムです。
	Fs afero.Fs
	// Stdout は writer.type が stdout の場合の出力先です。nil の場合は os.Stdout です。
	Stdout io.Writer
}

// RunApplication は設定をロードしてジョブを実行し、プロセスの終了コードを返します。
func RunApplication(ctx context.Context, opts Options, embeddedConfig []byte) int {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	cfg, err := loadConfig(opts, embeddedConfig)
	if err != nil {
		return handleApplicationError(err, nil, "")
	}
	if err := logger.Configure(cfg.System.Logging.Level, cfg.System.Logging.Format); err != nil {
		logger.Warnf("ロガーの設定に失敗しました。デフォルトの設定で続行します: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	applyTimezone(cfg.System.Timezone)

	params := core.NewJobParameters()
	params.Put("archives", cfg.Reader.Archives)
	params.Put("writer.type", cfg.Writer.Type)
	launcher := joblauncher.NewSimpleJobLauncher(incrementer.NewTimestampIncrementer("run.timestamp"))
	jobExecution := launcher.CreateExecution(cfg.Batch.JobName, params)

	job, cleanup, err := buildJob(ctx, cfg, opts, jobExecution.ID)
	if err != nil {
		return handleApplicationError(err, nil, cfg.Batch.JobName)
	}
	defer func() {
		if closeErr := cleanup(); closeErr != nil {
			logger.Errorf("リソースのクローズ中にエラーが発生しました: %v", closeErr)
		}
	}()

	logger.Infof("実行する Job: '%s'", cfg.Batch.JobName)
	runErr := launcher.Launch(ctx, job, jobExecution)
	return handleApplicationError(runErr, jobExecution, cfg.Batch.JobName)
}

// loadConfig は .env、設定ファイル、コマンドラインの順に値を重ねて Config を作成します。
func loadConfig(opts Options, embeddedConfig []byte) (*config.Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			logger.Warnf(".env ファイル '%s' のロードに失敗しました (本番環境では環境変数を使用): %v", opts.EnvFile, err)
		} else {
			logger.Infof(".env ファイル '%s' をロードしました。", opts.EnvFile)
		}
	}

	var loader config.ConfigLoader = config.NewBytesConfigLoader(embeddedConfig)
	if opts.ConfigPath != "" {
		loader = config.NewFileConfigLoader(opts.Fs, opts.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	applyOptions(cfg, opts)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if len(cfg.Reader.Archives) == 0 {
		logger.Warnf("読み込むアーカイブが指定されていません。")
	}
	return cfg, nil
}

func applyOptions(cfg *config.Config, opts Options) {
	if len(opts.Archives) > 0 {
		cfg.Reader.Archives = opts.Archives
	}
	if opts.Writer != "" {
		cfg.Writer.Type = opts.Writer
	}
	if opts.Output != "" {
		cfg.Writer.OutputPath = opts.Output
		if opts.Writer == "" {
			cfg.Writer.Type = "file"
		}
	}
	if opts.Encoding != "" {
		cfg.Reader.Encoding = opts.Encoding
	}
	if opts.LogLevel != "" {
		cfg.System.Logging.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.System.Logging.Format = opts.LogFormat
	}
	if opts.RestartFile != "" {
		cfg.Batch.RestartFile = opts.RestartFile
	}
	if opts.ChunkSize > 0 {
		cfg.Batch.ChunkSize = opts.ChunkSize
	}
}

func applyTimezone(name string) {
	if name == "" {
		return
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warnf("タイムゾーン '%s' の読み込みに失敗しました。ローカルタイムゾーンを使用します: %v", name, err)
		return
	}
	time.Local = loc
}

// buildJob はリーダー、プロセッサー、ライターを組み立てた zipLinesJob を返します。
// 戻り値の関数はジョブ終了後に呼び出し、データベース接続などを解放します。
func buildJob(ctx context.Context, cfg *config.Config, opts Options, runID string) (core.Job, func() error, error) {
	noop := func() error { return nil }

	archives, err := resource.ResolveResources(opts.Fs, cfg.Reader.Archives)
	if err != nil {
		return nil, noop, err
	}

	delegate := reader.NewFlatFileItemReader[string](reader.PassThroughLineMapper{})
	delegate.SetEncoding(cfg.Reader.Encoding)
	delegate.SetLinesToSkip(cfg.Reader.LinesToSkip)
	delegate.SetComments(cfg.Reader.Comments)
	delegate.SetStrict(cfg.Reader.Strict)
	delegate.SetMaxLineSize(cfg.Reader.MaxLineSize)

	zipReader := reader.NewZipMultiResourceItemReader[string](readerName, archives, delegate)
	zipReader.SetSaveState(cfg.Reader.SaveState || cfg.Batch.RestartFile != "")

	lineWriter, db, err := buildWriter(ctx, cfg, opts, runID)
	if err != nil {
		return nil, noop, err
	}
	cleanup := noop
	if db != nil {
		cleanup = db.Close
	}

	chunkStep := step.NewChunkStep[string, string](stepName, zipReader, processor.NewLineProcessor(cfg.Processor), lineWriter, cfg.Batch.ChunkSize)
	chunkStep.SetItemRetryConfig(cfg.Batch.ItemRetry)
	if db != nil {
		chunkStep.SetDBConnection(db)
	}
	chunkStep.RegisterStepExecutionListener(steplistener.NewLoggingStepExecutionListener())
	chunkStep.RegisterChunkListener(steplistener.NewLoggingChunkListener())
	chunkStep.RegisterItemReadListener(steplistener.NewLoggingItemReadListener())
	chunkStep.RegisterItemProcessListener(steplistener.NewLoggingItemProcessListener())
	chunkStep.RegisterItemWriteListener(steplistener.NewLoggingItemWriteListener())
	chunkStep.RegisterRetryItemListener(steplistener.NewLoggingRetryItemListener())

	job := runner.NewSimpleJob(cfg.Batch.JobName, chunkStep)
	job.RegisterListener(joblistener.NewLoggingJobListener())
	if cfg.Batch.RestartFile != "" {
		repo := repository.NewFileExecutionContextRepository(opts.Fs, cfg.Batch.RestartFile)
		chunkStep.SetExecutionContextRepository(repo)
		job.RegisterListener(joblistener.NewCheckpointCleanupListener(repo))
	}
	return job, cleanup, nil
}

// buildWriter は writer.type に応じた ItemWriter を作成します。database の場合は接続も返します。
func buildWriter(ctx context.Context, cfg *config.Config, opts Options, runID string) (core.ItemWriter[string], database.DBConnection, error) {
	switch cfg.Writer.Type {
	case "stdout":
		return writer.NewStreamItemWriter[string](writerName, opts.Stdout, writer.DefaultFormatter[string]), nil, nil
	case "file":
		return writer.NewFlatFileItemWriter[string](writerName, opts.Fs, cfg.Writer.OutputPath, cfg.Writer.Append, writer.DefaultFormatter[string]), nil, nil
	case "database":
		if err := database.RunMigrations(cfg.Database.Type, cfg.Database.ConnectionString(), cfg.Database.AppMigrationPath); err != nil {
			return nil, nil, exception.NewBatchError("app", "マイグレーションの実行に失敗しました", err, false, false)
		}
		db, err := connector.NewDBConnectionFromConfig(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		w := writer.NewSQLItemWriter[string](writerName, cfg.Database.Type, cfg.Writer.Table,
			[]string{"run_id", "seq", "content"},
			func(line string, seq int) []any { return []any{runID, seq, line} })
		return w, db, nil
	default:
		return nil, nil, exception.NewConfigurationError("app", "未対応の writer.type: "+cfg.Writer.Type, nil)
	}
}

// handleApplicationError はアプリケーションのエラーを処理し、適切な終了コードを返します。
func handleApplicationError(err error, jobExecution *core.JobExecution, jobName string) int {
	hasError := false

	if err != nil {
		hasError = true
		if jobExecution != nil {
			logger.Errorf("Job '%s' (Execution ID: %s) の実行中にエラーが発生しました: %v", jobName, jobExecution.ID, err)
		} else {
			logger.Errorf("Job '%s' の起動処理中にエラーが発生しました: %v", jobName, err)
		}

		var be *exception.BatchError
		if errors.As(err, &be) {
			logger.Errorf("BatchError 詳細: Module=%s, Message=%s, OriginalErr=%v", be.Module, be.Message, be.OriginalErr)
			if be.StackTrace != "" {
				logger.Debugf("BatchError StackTrace:\n%s", be.StackTrace)
			}
		}
	}

	if jobExecution != nil && jobExecution.Status != core.BatchStatusCompleted {
		hasError = true
		logger.Errorf("Job '%s' は %s で終了しました。詳細は JobExecution (ID: %s) およびログを確認してください。",
			jobExecution.JobName, jobExecution.Status, jobExecution.ID)
	}

	if hasError {
		return 1
	}
	return 0
}
