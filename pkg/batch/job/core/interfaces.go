package core

import (
	"context"
	"errors"

	"zipbatch/pkg/batch/database"
)

// ErrItemFiltered は ItemProcessor がアイテムを書き込み対象から除外したことを示します。
// ChunkStep はこのエラーを失敗として扱わず、FilterCount を加算します。
var ErrItemFiltered = errors.New("item filtered")

// Job は実行可能なバッチジョブのインターフェースです。
type Job interface {
	Run(ctx context.Context, jobExecution *JobExecution) error
	JobName() string
}

// JobParametersIncrementer はジョブ起動前に JobParameters を加工します。
type JobParametersIncrementer interface {
	GetNext(params JobParameters) JobParameters
}

// Step はジョブ内で実行される単一のステップのインターフェースです。
type Step interface {
	Execute(ctx context.Context, jobExecution *JobExecution, stepExecution *StepExecution) error
	StepName() string
}

// ItemReader はデータを読み込むステップのインターフェースです。
// O は読み込まれるアイテムの型です。読み込むアイテムがなくなった場合、Read は io.EOF を返します。
type ItemReader[O any] interface {
	Open(ctx context.Context, ec ExecutionContext) error                // リソースを開き、ExecutionContextから状態を復元
	Read(ctx context.Context) (O, error)                                // 読み込んだデータを O 型で返す
	Close(ctx context.Context) error                                    // リソースを解放するためのメソッド
	SetExecutionContext(ctx context.Context, ec ExecutionContext) error // ExecutionContext を設定
	GetExecutionContext(ctx context.Context) (ExecutionContext, error)  // ExecutionContext を取得
}

// ItemProcessor はアイテムを処理するステップのインターフェースです。
// I は入力アイテムの型、O は出力アイテムの型です。
type ItemProcessor[I, O any] interface {
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter はデータを書き込むステップのインターフェースです。
// I は書き込まれるアイテムの型です。tx はトランザクションを使用しないステップでは nil です。
type ItemWriter[I any] interface {
	Open(ctx context.Context, ec ExecutionContext) error
	Write(ctx context.Context, tx database.Tx, items []I) error
	Close(ctx context.Context) error
	SetExecutionContext(ctx context.Context, ec ExecutionContext) error
	GetExecutionContext(ctx context.Context) (ExecutionContext, error)
}

// StepExecutionListener はステップ実行イベントを処理するためのインターフェースです。
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, stepExecution *StepExecution)
	AfterStep(ctx context.Context, stepExecution *StepExecution)
}

// JobExecutionListener はジョブの実行ライフサイクルイベントを処理するためのインターフェースです。
type JobExecutionListener interface {
	BeforeJob(ctx context.Context, jobExecution *JobExecution)
	AfterJob(ctx context.Context, jobExecution *JobExecution)
}

// ItemReadListener はアイテム読み込みイベントを処理するためのインターフェースです。
type ItemReadListener interface {
	OnReadError(ctx context.Context, err error) // 読み込みエラー時に呼び出されます
}

// ChunkListener はチャンク単位のイベントを処理するためのインターフェースです。
type ChunkListener interface {
	BeforeChunk(ctx context.Context, stepExecution *StepExecution)
	AfterChunk(ctx context.Context, stepExecution *StepExecution)
}

// ItemProcessListener はアイテム処理イベントを処理するためのインターフェースです。
type ItemProcessListener interface {
	OnProcessError(ctx context.Context, item any, err error)
}

// ItemWriteListener はアイテム書き込みイベントを処理するためのインターフェースです。
type ItemWriteListener interface {
	OnWriteError(ctx context.Context, items []any, err error)
}

// RetryItemListener は書き込みのリトライイベントを処理するためのインターフェースです。
type RetryItemListener interface {
	OnRetryWrite(ctx context.Context, items []any, attempt int, err error)
}
