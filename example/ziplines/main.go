package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "embed"

	"github.com/urfave/cli/v3"

	"zipbatch/example/ziplines/app"
	"zipbatch/pkg/batch/util/logger"
)

//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// シグナルハンドリング (Ctrl+C などで安全に終了するため)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("シグナル '%v' を受信しました。ジョブの停止を試みます...", sig)
		cancel()
	}()

	exitCode := 0
	cmd := &cli.Command{
		Name:      "ziplines",
		Usage:     "ZIP アーカイブ内のテキストエントリを 1 行ずつ出力します",
		ArgsUsage: "[archive ...]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "archive",
				Aliases: []string{"a"},
				Usage:   "読み込むアーカイブのパスまたは glob パターン (複数指定可)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "設定ファイルのパス。省略時は組み込みの設定を使用します",
				Sources: cli.EnvVars("ZIPLINES_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "env-file",
				Value:   ".env",
				Usage:   "読み込む .env ファイルのパス",
				Sources: cli.EnvVars("ENV_FILE_PATH"),
			},
			&cli.StringFlag{
				Name:  "writer",
				Usage: "出力先 (stdout, file, database)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "writer が file の場合の出力ファイル",
			},
			&cli.StringFlag{
				Name:  "encoding",
				Usage: "エントリの文字エンコーディング (例: UTF-8, Shift_JIS)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "ログレベル (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "ログの出力形式 (console, json)",
			},
			&cli.StringFlag{
				Name:  "restart-file",
				Usage: "リスタート用のチェックポイントファイル",
			},
			&cli.IntFlag{
				Name:  "chunk-size",
				Usage: "1 チャンクあたりのアイテム数",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			archives := append(command.StringSlice("archive"), command.Args().Slice()...)
			exitCode = app.RunApplication(ctx, app.Options{
				EnvFile:     command.String("env-file"),
				ConfigPath:  command.String("config"),
				Archives:    archives,
				Writer:      command.String("writer"),
				Output:      command.String("output"),
				Encoding:    command.String("encoding"),
				LogLevel:    command.String("log-level"),
				LogFormat:   command.String("log-format"),
				RestartFile: command.String("restart-file"),
				ChunkSize:   int(command.Int("chunk-size")),
			}, embeddedConfig)
			return nil
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Errorf("コマンドの実行に失敗しました: %v", err)
		exitCode = 2
	}
	os.Exit(exitCode)
}
