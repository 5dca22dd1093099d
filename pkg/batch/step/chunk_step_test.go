package step_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zipbatch/pkg/batch/config"
	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/repository"
	"zipbatch/pkg/batch/resource"
	"zipbatch/pkg/batch/step"
	"zipbatch/pkg/batch/step/processor"
	"zipbatch/pkg/batch/step/reader"
	"zipbatch/pkg/batch/step/writer"
	"zipbatch/pkg/batch/util/exception"
)

func numberedItems(n int) []string {
	items := make([]string, n)
	for i := range items {
		items[i] = strconv.Itoa(i)
	}
	return items
}

func newExecutions(jobName, stepName string) (*core.JobExecution, *core.StepExecution) {
	je := core.NewJobExecution(jobName, core.NewJobParameters())
	return je, core.NewStepExecution(stepName, je)
}

func TestChunkStep_WritesInChunks(t *testing.T) {
	ctx := context.Background()
	r := &sliceReader{items: numberedItems(25)}
	w := &recordingWriter{}
	s := step.NewChunkStep[string, string]("lines", r, processor.NewPassThroughItemProcessor[string](), w, 10)

	je, se := newExecutions("job", "lines")
	require.NoError(t, s.Execute(ctx, je, se))

	require.Len(t, w.chunks, 3)
	assert.Len(t, w.chunks[0], 10)
	assert.Len(t, w.chunks[1], 10)
	assert.Len(t, w.chunks[2], 5)
	assert.Equal(t, numberedItems(25), w.all())
	assert.Nil(t, w.txs[0])

	assert.Equal(t, core.BatchStatusCompleted, se.Status)
	assert.Equal(t, core.ExitStatusCompleted, se.ExitStatus)
	assert.Equal(t, 25, se.ReadCount)
	assert.Equal(t, 25, se.WriteCount)
	assert.Equal(t, 3, se.CommitCount)
	assert.Equal(t, 1, r.closed)
	assert.Equal(t, 1, w.closed)
}

func TestChunkStep_ExactMultipleOfChunkSize(t *testing.T) {
	ctx := context.Background()
	r := &sliceReader{items: numberedItems(20)}
	w := &recordingWriter{}
	s := step.NewChunkStep[string, string]("lines", r, processor.NewPassThroughItemProcessor[string](), w, 10)

	je, se := newExecutions("job", "lines")
	require.NoError(t, s.Execute(ctx, je, se))
	assert.Len(t, w.chunks, 2)
	assert.Equal(t, 2, se.CommitCount)
}

func TestChunkStep_FiltersItems(t *testing.T) {
	ctx := context.Background()
	r := &sliceReader{items: []string{" a ", "", "b", "   ", "c"}}
	w := &recordingWriter{}
	p := processor.NewLineProcessor(config.ProcessorConfig{Trim: true, SkipBlankLines: true})
	s := step.NewChunkStep[string, string]("lines", r, p, w, 2)

	je, se := newExecutions("job", "lines")
	require.NoError(t, s.Execute(ctx, je, se))

	assert.Equal(t, []string{"a", "b", "c"}, w.all())
	assert.Equal(t, 5, se.ReadCount)
	assert.Equal(t, 2, se.FilterCount)
	assert.Equal(t, 3, se.WriteCount)
}

func TestChunkStep_ReadErrorFailsStep(t *testing.T) {
	ctx := context.Background()
	readErr := exception.NewDecodeError("zip_reader", "bad bytes", nil)
	r := &sliceReader{items: numberedItems(10), failAt: 7, err: readErr}
	w := &recordingWriter{}
	listener := &readErrorRecorder{}
	s := step.NewChunkStep[string, string]("lines", r, processor.NewPassThroughItemProcessor[string](), w, 5)
	s.RegisterItemReadListener(listener)

	je, se := newExecutions("job", "lines")
	err := s.Execute(ctx, je, se)
	assert.ErrorIs(t, err, exception.ErrDecode)

	// 失敗したチャンクは書き込まれない
	assert.Equal(t, numberedItems(5), w.all())
	assert.Equal(t, core.BatchStatusFailed, se.Status)
	assert.Equal(t, 5, se.ReadCount)
	assert.Len(t, listener.errs, 1)
	assert.Equal(t, 1, r.closed)
	assert.Equal(t, 1, w.closed)
}

func TestChunkStep_RetriesRetryableWrites(t *testing.T) {
	ctx := context.Background()
	r := &sliceReader{items: numberedItems(3)}
	w := &recordingWriter{errs: []error{
		exception.NewBatchError("sql_writer", "deadlock", errors.New("deadlock"), true, false),
	}}
	db := &fakeDB{}
	retries := &retryRecorder{}
	s := step.NewChunkStep[string, string]("lines", r, processor.NewPassThroughItemProcessor[string](), w, 10)
	s.SetDBConnection(db)
	s.SetItemRetryConfig(config.ItemRetryConfig{MaxAttempts: 3})
	s.RegisterRetryItemListener(retries)

	je, se := newExecutions("job", "lines")
	require.NoError(t, s.Execute(ctx, je, se))

	assert.Equal(t, numberedItems(3), w.all())
	assert.Equal(t, 2, db.begun)
	assert.Equal(t, 1, db.rollbacks)
	assert.Equal(t, 1, db.commits)
	assert.Equal(t, 1, se.RollbackCount)
	assert.Equal(t, 1, se.CommitCount)
	assert.Equal(t, []int{1}, retries.attempts)
	assert.NotNil(t, w.txs[0])
}

func TestChunkStep_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	retryable := exception.NewBatchError("sql_writer", "timeout", errors.New("timeout"), true, false)
	r := &sliceReader{items: numberedItems(3)}
	w := &recordingWriter{errs: []error{retryable, retryable, retryable}}
	db := &fakeDB{}
	s := step.NewChunkStep[string, string]("lines", r, processor.NewPassThroughItemProcessor[string](), w, 10)
	s.SetDBConnection(db)
	s.SetItemRetryConfig(config.ItemRetryConfig{MaxAttempts: 2})

	je, se := newExecutions("job", "lines")
	err := s.Execute(ctx, je, se)
	require.Error(t, err)
	assert.Equal(t, 2, db.begun)
	assert.Equal(t, 2, db.rollbacks)
	assert.Equal(t, 0, db.commits)
	assert.Equal(t, core.BatchStatusFailed, se.Status)
}

func TestChunkStep_NonRetryableWriteFailsImmediately(t *testing.T) {
	ctx := context.Background()
	r := &sliceReader{items: numberedItems(3)}
	w := &recordingWriter{errs: []error{errors.New("disk full")}}
	s := step.NewChunkStep[string, string]("lines", r, processor.NewPassThroughItemProcessor[string](), w, 10)
	s.SetItemRetryConfig(config.ItemRetryConfig{MaxAttempts: 5})

	je, se := newExecutions("job", "lines")
	assert.EqualError(t, s.Execute(ctx, je, se), "disk full")
	assert.Len(t, w.txs, 1)
}

func TestChunkStep_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &sliceReader{items: numberedItems(3)}
	w := &recordingWriter{}
	s := step.NewChunkStep[string, string]("lines", r, processor.NewPassThroughItemProcessor[string](), w, 10)

	je, se := newExecutions("job", "lines")
	err := s.Execute(ctx, je, se)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, core.BatchStatusStopped, se.Status)
	assert.Equal(t, 1, r.closed)
	assert.Equal(t, 1, w.closed)
}

func writeArchive(t *testing.T, fs afero.Fs, path string, lines []string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("lines.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0o644))
}

func newArchiveStep(fs afero.Fs, repo repository.ExecutionContextRepository, out *bytes.Buffer) *step.ChunkStep[string, string] {
	archives := []resource.Resource{
		resource.NewFileSystemResource(fs, "/in/first.zip"),
		resource.NewFileSystemResource(fs, "/in/second.zip"),
	}
	zr := reader.NewZipMultiResourceItemReader[string]("zipReader", archives,
		reader.NewFlatFileItemReader[string](reader.PassThroughLineMapper{}))
	zr.SetSaveState(true)
	w := writer.NewStreamItemWriter[string]("out", out, nil)
	s := step.NewChunkStep[string, string]("zipLinesStep", zr, processor.NewPassThroughItemProcessor[string](), w, 5)
	s.SetExecutionContextRepository(repo)
	return s
}

func TestChunkStep_RestartsFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	first := make([]string, 12)
	for i := range first {
		first[i] = fmt.Sprintf("first-%d", i)
	}
	writeArchive(t, fs, "/in/first.zip", first)
	repo := repository.NewFileExecutionContextRepository(fs, "/state/restart.json")

	// 2 つ目のアーカイブが存在しないため、最初の実行は失敗する
	var out1 bytes.Buffer
	je, se := newExecutions("zipLinesJob", "zipLinesStep")
	err := newArchiveStep(fs, repo, &out1).Execute(ctx, je, se)
	require.ErrorIs(t, err, exception.ErrResourceUnavailable)
	assert.Equal(t, strings.Join(first[:10], "\n")+"\n", out1.String())

	saved, err := repo.Load(ctx, "zipLinesJob", "zipLinesStep")
	require.NoError(t, err)
	n, ok := saved.GetInt("zipReader.read.count")
	require.True(t, ok)
	assert.Equal(t, 10, n)

	writeArchive(t, fs, "/in/second.zip", []string{"second-0", "second-1"})

	var out2 bytes.Buffer
	je, se = newExecutions("zipLinesJob", "zipLinesStep")
	require.NoError(t, newArchiveStep(fs, repo, &out2).Execute(ctx, je, se))
	assert.Equal(t, "first-10\nfirst-11\nsecond-0\nsecond-1\n", out2.String())
	assert.Equal(t, 4, se.WriteCount)
}
