package step

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"zipbatch/pkg/batch/config"
	"zipbatch/pkg/batch/database"
	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/repository"
	"zipbatch/pkg/batch/util/exception"
	logger "zipbatch/pkg/batch/util/logger"
)

const chunkStepModule = "chunk_step"

// ChunkStep はチャンク指向のステップを実装します。
// Reader から chunkSize 件ずつ読み込み、Processor で加工し、Writer でまとめて書き込みます。
//
// DBConnection が設定されている場合、チャンクごとにトランザクションを開始し、書き込み後にコミットします。
// ExecutionContextRepository が設定されている場合、コミットのたびに ExecutionContext を保存し、
// 次回の実行ではそこから Reader と Writer の状態を復元します。
type ChunkStep[I, O any] struct {
	name      string
	reader    core.ItemReader[I]
	processor core.ItemProcessor[I, O]
	writer    core.ItemWriter[O]
	chunkSize int

	db          database.DBConnection
	checkpoints repository.ExecutionContextRepository
	retry       config.ItemRetryConfig

	stepListeners        []core.StepExecutionListener
	chunkListeners       []core.ChunkListener
	itemReadListeners    []core.ItemReadListener
	itemProcessListeners []core.ItemProcessListener
	itemWriteListeners   []core.ItemWriteListener
	retryItemListeners   []core.RetryItemListener
}

// NewChunkStep は新しい ChunkStep のインスタンスを作成します。chunkSize が 1 未満の場合は 1 になります。
func NewChunkStep[I, O any](
	name string,
	r core.ItemReader[I],
	p core.ItemProcessor[I, O],
	w core.ItemWriter[O],
	chunkSize int,
) *ChunkStep[I, O] {
	if chunkSize < 1 {
		chunkSize = 1
	}
	return &ChunkStep[I, O]{
		name:      name,
		reader:    r,
		processor: p,
		writer:    w,
		chunkSize: chunkSize,
	}
}

// SetDBConnection はチャンクごとのトランザクションに使用する接続を設定します。
func (cs *ChunkStep[I, O]) SetDBConnection(db database.DBConnection) { cs.db = db }

// SetExecutionContextRepository はチェックポイントの保存先を設定します。
func (cs *ChunkStep[I, O]) SetExecutionContextRepository(repo repository.ExecutionContextRepository) {
	cs.checkpoints = repo
}

// SetItemRetryConfig はリトライ可能な書き込みエラーのリトライ設定を行います。
func (cs *ChunkStep[I, O]) SetItemRetryConfig(cfg config.ItemRetryConfig) { cs.retry = cfg }

// RegisterStepExecutionListener は StepExecutionListener を登録します。
func (cs *ChunkStep[I, O]) RegisterStepExecutionListener(l core.StepExecutionListener) {
	cs.stepListeners = append(cs.stepListeners, l)
}

// RegisterChunkListener は ChunkListener を登録します。
func (cs *ChunkStep[I, O]) RegisterChunkListener(l core.ChunkListener) {
	cs.chunkListeners = append(cs.chunkListeners, l)
}

// RegisterItemReadListener は ItemReadListener を登録します。
func (cs *ChunkStep[I, O]) RegisterItemReadListener(l core.ItemReadListener) {
	cs.itemReadListeners = append(cs.itemReadListeners, l)
}

// RegisterItemProcessListener は ItemProcessListener を登録します。
func (cs *ChunkStep[I, O]) RegisterItemProcessListener(l core.ItemProcessListener) {
	cs.itemProcessListeners = append(cs.itemProcessListeners, l)
}

// RegisterItemWriteListener は ItemWriteListener を登録します。
func (cs *ChunkStep[I, O]) RegisterItemWriteListener(l core.ItemWriteListener) {
	cs.itemWriteListeners = append(cs.itemWriteListeners, l)
}

// RegisterRetryItemListener は RetryItemListener を登録します。
func (cs *ChunkStep[I, O]) RegisterRetryItemListener(l core.RetryItemListener) {
	cs.retryItemListeners = append(cs.retryItemListeners, l)
}

// StepName はステップの名前を返します。
func (cs *ChunkStep[I, O]) StepName() string {
	return cs.name
}

// Execute はチャンクステップを実行します。Reader と Writer は成功・失敗に関わらず必ずクローズされます。
func (cs *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *core.JobExecution, stepExecution *core.StepExecution) (err error) {
	if stepExecution.ExecutionContext == nil {
		stepExecution.ExecutionContext = core.NewExecutionContext()
	}
	if err := cs.restoreCheckpoint(ctx, jobExecution, stepExecution); err != nil {
		stepExecution.MarkAsFailed(err)
		return err
	}
	committed := stepExecution.ExecutionContext.Copy()

	stepExecution.MarkAsStarted()
	for _, l := range cs.stepListeners {
		l.BeforeStep(ctx, stepExecution)
	}
	defer func() {
		for _, l := range cs.stepListeners {
			l.AfterStep(ctx, stepExecution)
		}
		logger.Infof("ステップ '%s' の実行が完了しました。ステータス: %s, 終了ステータス: %s", cs.name, stepExecution.Status, stepExecution.ExitStatus)
	}()

	if err := cs.reader.Open(ctx, stepExecution.ExecutionContext); err != nil {
		cs.fail(ctx, stepExecution, committed, err)
		return err
	}
	if err := cs.writer.Open(ctx, stepExecution.ExecutionContext); err != nil {
		cs.closeAll(ctx)
		cs.fail(ctx, stepExecution, committed, err)
		return err
	}
	defer func() {
		if closeErr := cs.closeAll(ctx); closeErr != nil && err == nil {
			err = closeErr
			stepExecution.MarkAsFailed(closeErr)
		}
	}()

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			stepExecution.ExecutionContext = committed.Copy()
			stepExecution.MarkAsStopped(ctxErr)
			logger.Warnf("ステップ '%s' がコンテキストキャンセルにより停止されました: %v", cs.name, ctxErr)
			return ctxErr
		}

		for _, l := range cs.chunkListeners {
			l.BeforeChunk(ctx, stepExecution)
		}
		items, readCount, filtered, eof, chunkErr := cs.readChunk(ctx)
		if chunkErr == nil && readCount > 0 {
			chunkErr = cs.writeChunk(ctx, stepExecution, items)
		}
		if chunkErr != nil {
			for _, l := range cs.chunkListeners {
				l.AfterChunk(ctx, stepExecution)
			}
			if errors.Is(chunkErr, context.Canceled) || errors.Is(chunkErr, context.DeadlineExceeded) {
				stepExecution.ExecutionContext = committed.Copy()
				stepExecution.MarkAsStopped(chunkErr)
				return chunkErr
			}
			cs.fail(ctx, stepExecution, committed, chunkErr)
			return chunkErr
		}

		if readCount > 0 {
			stepExecution.ReadCount += readCount
			stepExecution.FilterCount += filtered
			stepExecution.WriteCount += len(items)
			stepExecution.CommitCount++
			if err := cs.checkpoint(ctx, stepExecution); err != nil {
				cs.fail(ctx, stepExecution, committed, err)
				return err
			}
			committed = stepExecution.ExecutionContext.Copy()
			logger.Debugf("ステップ '%s': %d アイテムを読み込み、%d アイテムを書き込みました。コミットカウント: %d",
				cs.name, readCount, len(items), stepExecution.CommitCount)
		}
		for _, l := range cs.chunkListeners {
			l.AfterChunk(ctx, stepExecution)
		}

		if eof {
			break
		}
	}

	stepExecution.MarkAsCompleted()
	return nil
}

// readChunk は最大 chunkSize 件を読み込み、Processor で加工します。
// 除外されたアイテムは filtered に数えられ、items には含まれません。
func (cs *ChunkStep[I, O]) readChunk(ctx context.Context) (items []O, readCount, filtered int, eof bool, err error) {
	items = make([]O, 0, cs.chunkSize)
	for readCount < cs.chunkSize {
		in, readErr := cs.reader.Read(ctx)
		if errors.Is(readErr, io.EOF) {
			return items, readCount, filtered, true, nil
		}
		if readErr != nil {
			for _, l := range cs.itemReadListeners {
				l.OnReadError(ctx, readErr)
			}
			return nil, readCount, filtered, false, readErr
		}
		readCount++

		out, procErr := cs.processor.Process(ctx, in)
		if errors.Is(procErr, core.ErrItemFiltered) {
			filtered++
			continue
		}
		if procErr != nil {
			for _, l := range cs.itemProcessListeners {
				l.OnProcessError(ctx, in, procErr)
			}
			return nil, readCount, filtered, false, procErr
		}
		items = append(items, out)
	}
	return items, readCount, filtered, false, nil
}

// writeChunk はチャンクを書き込み、トランザクションを使用する場合はコミットします。
// リトライ可能なエラーはロールバック後に新しいトランザクションで再試行します。
func (cs *ChunkStep[I, O]) writeChunk(ctx context.Context, stepExecution *core.StepExecution, items []O) error {
	maxAttempts := max(cs.retry.MaxAttempts, 1)
	for attempt := 1; ; attempt++ {
		err := cs.writeOnce(ctx, items)
		if err == nil {
			return nil
		}
		if cs.db != nil {
			stepExecution.RollbackCount++
		}
		if exception.IsRetryable(err) && attempt < maxAttempts {
			anyItems := toAnySlice(items)
			for _, l := range cs.retryItemListeners {
				l.OnRetryWrite(ctx, anyItems, attempt, err)
			}
			if waitErr := sleepContext(ctx, time.Duration(cs.retry.InitialInterval)*time.Millisecond); waitErr != nil {
				return waitErr
			}
			continue
		}
		anyItems := toAnySlice(items)
		for _, l := range cs.itemWriteListeners {
			l.OnWriteError(ctx, anyItems, err)
		}
		return err
	}
}

func (cs *ChunkStep[I, O]) writeOnce(ctx context.Context, items []O) error {
	if cs.db == nil {
		if len(items) == 0 {
			return nil
		}
		return cs.writer.Write(ctx, nil, items)
	}

	tx, err := cs.db.BeginTx(ctx, nil)
	if err != nil {
		return exception.NewBatchError(chunkStepModule, "トランザクションの開始に失敗しました", err, true, false)
	}
	if len(items) > 0 {
		if err := cs.writer.Write(ctx, tx, items); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Errorf("ステップ '%s': ロールバックに失敗しました: %v", cs.name, rbErr)
			}
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return exception.NewBatchError(chunkStepModule, "トランザクションのコミットに失敗しました", err, true, false)
	}
	return nil
}

// checkpoint は Reader と Writer の状態を StepExecution に集め、リポジトリに保存します。
func (cs *ChunkStep[I, O]) checkpoint(ctx context.Context, stepExecution *core.StepExecution) error {
	if ec, err := cs.reader.GetExecutionContext(ctx); err == nil {
		stepExecution.ExecutionContext.Merge(ec)
	} else {
		return exception.NewBatchError(chunkStepModule, "Reader の ExecutionContext 取得に失敗しました", err, false, false)
	}
	if ec, err := cs.writer.GetExecutionContext(ctx); err == nil {
		stepExecution.ExecutionContext.Merge(ec)
	} else {
		return exception.NewBatchError(chunkStepModule, "Writer の ExecutionContext 取得に失敗しました", err, false, false)
	}
	stepExecution.LastUpdated = time.Now()
	if cs.checkpoints == nil {
		return nil
	}
	return cs.checkpoints.Save(ctx, stepExecution)
}

// restoreCheckpoint は保存されたチェックポイントを StepExecution の ExecutionContext に読み込みます。
func (cs *ChunkStep[I, O]) restoreCheckpoint(ctx context.Context, jobExecution *core.JobExecution, stepExecution *core.StepExecution) error {
	if cs.checkpoints == nil {
		return nil
	}
	jobName := ""
	if jobExecution != nil {
		jobName = jobExecution.JobName
	}
	ec, err := cs.checkpoints.Load(ctx, jobName, cs.name)
	if err != nil {
		return err
	}
	if len(ec) > 0 {
		logger.Infof("ステップ '%s' はチェックポイントから再開します。", cs.name)
	}
	stepExecution.ExecutionContext.Merge(ec)
	return nil
}

// fail は StepExecution を失敗状態にし、最後にコミットした時点の ExecutionContext をエラー情報とともに保存します。
func (cs *ChunkStep[I, O]) fail(ctx context.Context, stepExecution *core.StepExecution, committed core.ExecutionContext, err error) {
	stepExecution.ExecutionContext = committed.Copy()
	stepExecution.MarkAsFailed(err)
	logger.Errorf("ステップ '%s' が失敗しました: %v", cs.name, err)
	if cs.checkpoints == nil {
		return
	}
	if saveErr := cs.checkpoints.Save(context.WithoutCancel(ctx), stepExecution); saveErr != nil {
		logger.Errorf("ステップ '%s': チェックポイントの保存に失敗しました: %v", cs.name, saveErr)
	}
}

// closeAll は Reader と Writer をクローズします。キャンセル済みのコンテキストでもクローズは行います。
func (cs *ChunkStep[I, O]) closeAll(ctx context.Context) error {
	closeCtx := context.WithoutCancel(ctx)
	var errs []error
	if err := cs.reader.Close(closeCtx); err != nil {
		errs = append(errs, exception.NewBatchError(chunkStepModule, "Reader のクローズに失敗しました", err, false, false))
	}
	if err := cs.writer.Close(closeCtx); err != nil {
		errs = append(errs, exception.NewBatchError(chunkStepModule, "Writer のクローズに失敗しました", err, false, false))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	logger.Debugf("ステップ '%s' のリソースを閉じました。", cs.name)
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// toAnySlice は任意の型のスライスを []any に変換します。リスナーに渡すために使用します。
func toAnySlice[T any](items []T) []any {
	out := make([]any, len(items))
	for i, v := range items {
		out[i] = v
	}
	return out
}

// String はログ出力用の表現を返します。
func (cs *ChunkStep[I, O]) String() string {
	return fmt.Sprintf("ChunkStep(name=%s, chunkSize=%d)", cs.name, cs.chunkSize)
}

// ChunkStep が core.Step インターフェースを満たすことを確認
var _ core.Step = (*ChunkStep[any, any])(nil)
