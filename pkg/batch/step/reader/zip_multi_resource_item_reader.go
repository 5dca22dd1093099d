package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/klauspost/compress/zip"

	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/resource"
	"zipbatch/pkg/batch/util/exception"
	"zipbatch/pkg/batch/util/logger"
)

const zipReaderModule = "zip_reader"

type readerState int

const (
	stateUnopened readerState = iota
	stateOpen
	stateClosed
)

// ZipMultiResourceItemReader は複数の ZIP アーカイブに含まれる全てのエントリを、
// 1 つの連続したアイテムストリームとして読み込む Reader です。
//
// アーカイブは設定された順に、エントリはアーカイブの中央ディレクトリの順に読み込まれます。
// ディレクトリエントリは読み飛ばされます。各エントリの行の解釈はデリゲートに委譲され、
// 同時に開かれるエントリは常に 1 つ以下です。
type ZipMultiResourceItemReader[T any] struct {
	name      string
	archives  []resource.Resource
	delegate  ResourceAwareItemReader[T]
	saveState bool

	state        readerState
	archiveIndex int
	entryIndex   int
	current      *openArchive
	entryOpen    bool
	readCount    int
	// failure はデリゲートの読み込みで発生したエラーです。Close まで Read はこのエラーを返し続けます。
	failure error

	executionContext core.ExecutionContext
}

// openArchive は読み込み中のアーカイブと、その中の読み込み対象エントリの一覧です。
type openArchive struct {
	res     resource.Resource
	closer  io.Closer
	entries []*zip.File
}

// NewZipMultiResourceItemReader は新しい ZipMultiResourceItemReader を作成します。
// name は ExecutionContext に状態を保存する際のキーの接頭辞になります。
func NewZipMultiResourceItemReader[T any](name string, archives []resource.Resource, delegate ResourceAwareItemReader[T]) *ZipMultiResourceItemReader[T] {
	if name == "" {
		name = "ZipMultiResourceItemReader"
	}
	return &ZipMultiResourceItemReader[T]{
		name:             name,
		archives:         archives,
		delegate:         delegate,
		executionContext: core.NewExecutionContext(),
	}
}

// SetArchives は読み込むアーカイブを設定します。Open 中は変更できません。
func (r *ZipMultiResourceItemReader[T]) SetArchives(archives []resource.Resource) error {
	if r.state == stateOpen {
		return exception.NewInvalidStateError(zipReaderModule, "オープン中にアーカイブを変更することはできません")
	}
	r.archives = archives
	return nil
}

// SetDelegate はエントリごとの行の読み込みを担当するデリゲートを設定します。Open 中は変更できません。
func (r *ZipMultiResourceItemReader[T]) SetDelegate(delegate ResourceAwareItemReader[T]) error {
	if r.state == stateOpen {
		return exception.NewInvalidStateError(zipReaderModule, "オープン中にデリゲートを変更することはできません")
	}
	r.delegate = delegate
	return nil
}

// SetSaveState は読み込み件数を ExecutionContext に保存し、リスタート時に利用するかどうかを設定します。
func (r *ZipMultiResourceItemReader[T]) SetSaveState(saveState bool) {
	r.saveState = saveState
}

// Open は最初のアーカイブを開き、カーソルを先頭に設定します。エントリのデータはまだ読み込みません。
// saveState が有効で ec に読み込み件数が保存されている場合は、その件数分を読み飛ばします。
func (r *ZipMultiResourceItemReader[T]) Open(ctx context.Context, ec core.ExecutionContext) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if r.state == stateOpen {
		return exception.NewInvalidStateError(zipReaderModule, "ZipMultiResourceItemReader は既にオープンされています")
	}
	if r.delegate == nil {
		return exception.NewConfigurationError(zipReaderModule, "デリゲートが設定されていません", nil)
	}
	if ec == nil {
		ec = core.NewExecutionContext()
	}
	r.executionContext = ec

	r.archiveIndex = 0
	r.entryIndex = 0
	r.current = nil
	r.entryOpen = false
	r.readCount = 0
	r.failure = nil

	if len(r.archives) == 0 {
		logger.Warnf("ZipMultiResourceItemReader '%s': 読み込むアーカイブがありません。", r.name)
	} else if err := r.openCurrentArchive(); err != nil {
		return err
	}
	r.state = stateOpen
	logger.Debugf("ZipMultiResourceItemReader '%s' をオープンしました。アーカイブ数: %d", r.name, len(r.archives))

	if r.saveState {
		if n, ok := ec.GetInt(r.readCountKey()); ok && n > 0 {
			if err := r.skipItems(ctx, n); err != nil {
				r.release()
				r.state = stateClosed
				return err
			}
			logger.Infof("ZipMultiResourceItemReader '%s': リスタートのため %d 件を読み飛ばしました。", r.name, n)
		}
	}
	return nil
}

// Read は次のアイテムを返します。全てのアーカイブの全てのエントリを読み終えた場合は io.EOF を返します。
// エントリの読み込み中に発生したエラー (DecodeError など) はセッションを終了させ、以降の Read は同じエラーを返します。
// エントリやアーカイブを開けなかった場合はカーソルを進めないため、再度の Read は同じエントリを開き直します。
func (r *ZipMultiResourceItemReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
	}
	if r.state != stateOpen {
		return zero, exception.NewInvalidStateError(zipReaderModule, "Read はオープン中のみ呼び出せます")
	}
	if r.failure != nil {
		return zero, r.failure
	}

	for {
		if !r.entryOpen {
			ok, err := r.nextEntry(ctx)
			if err != nil {
				return zero, err
			}
			if !ok {
				return zero, io.EOF
			}
		}

		item, err := r.delegate.Read(ctx)
		if err == nil {
			r.readCount++
			return item, nil
		}
		if !errors.Is(err, io.EOF) {
			r.failure = err
			return zero, err
		}

		// 現在のエントリを読み終えたので閉じて次へ進む
		r.entryOpen = false
		if err := r.delegate.Close(ctx); err != nil {
			r.failure = err
			return zero, err
		}
	}
}

// Close は開いているエントリとアーカイブを解放します。複数回呼び出しても安全です。
// キャンセル済みのコンテキストでも解放処理は必ず行います。
func (r *ZipMultiResourceItemReader[T]) Close(ctx context.Context) error {
	if r.state != stateOpen {
		return nil
	}
	err := r.release()
	r.state = stateClosed
	r.failure = nil
	logger.Debugf("ZipMultiResourceItemReader '%s' をクローズしました。読み込み件数: %d", r.name, r.readCount)
	if err != nil {
		return exception.NewBatchError(zipReaderModule, "リソースのクローズに失敗しました", err, false, false)
	}
	return nil
}

// SetExecutionContext は ExecutionContext を設定します。状態の復元は Open で行います。
func (r *ZipMultiResourceItemReader[T]) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	r.executionContext = ec
	return nil
}

// GetExecutionContext は現在の読み込み件数を保存した ExecutionContext を返します。
func (r *ZipMultiResourceItemReader[T]) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if r.executionContext == nil {
		r.executionContext = core.NewExecutionContext()
	}
	if r.saveState {
		r.executionContext.Put(r.readCountKey(), r.readCount)
	}
	return r.executionContext, nil
}

// ReadCount はこのライフサイクルで返したアイテム数を返します (リスタートで読み飛ばした件数を含みます)。
func (r *ZipMultiResourceItemReader[T]) ReadCount() int {
	return r.readCount
}

// nextEntry はカーソルを次の読み込み対象エントリへ進め、デリゲートで開きます。
// 全てのアーカイブを読み終えた場合は false を返します。
func (r *ZipMultiResourceItemReader[T]) nextEntry(ctx context.Context) (bool, error) {
	for {
		if r.current == nil {
			if r.archiveIndex >= len(r.archives) {
				return false, nil
			}
			if err := r.openCurrentArchive(); err != nil {
				return false, err
			}
		}

		if r.entryIndex < len(r.current.entries) {
			f := r.current.entries[r.entryIndex]
			r.delegate.SetResource(&zipEntryResource{archive: r.current.res, file: f})
			if err := r.delegate.Open(ctx, core.NewExecutionContext()); err != nil {
				return false, err
			}
			r.entryIndex++
			r.entryOpen = true
			return true, nil
		}

		if err := r.closeCurrentArchive(); err != nil {
			return false, exception.NewBatchError(zipReaderModule, "アーカイブのクローズに失敗しました", err, false, false)
		}
		r.archiveIndex++
		r.entryIndex = 0
	}
}

func (r *ZipMultiResourceItemReader[T]) openCurrentArchive() error {
	res := r.archives[r.archiveIndex]
	a, err := openZipArchive(res)
	if err != nil {
		return exception.NewResourceUnavailableError(zipReaderModule, fmt.Sprintf("アーカイブ %s を開けませんでした", res.Description()), err)
	}
	r.current = a
	logger.Debugf("ZipMultiResourceItemReader '%s': %s を開きました。読み込み対象エントリ数: %d", r.name, res.Description(), len(a.entries))
	return nil
}

func (r *ZipMultiResourceItemReader[T]) closeCurrentArchive() error {
	if r.current == nil {
		return nil
	}
	err := r.current.closer.Close()
	r.current = nil
	return err
}

// release は開いているエントリとアーカイブを閉じ、全てのエラーをまとめて返します。
func (r *ZipMultiResourceItemReader[T]) release() error {
	var errs []error
	if r.entryOpen {
		r.entryOpen = false
		if err := r.delegate.Close(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.closeCurrentArchive(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *ZipMultiResourceItemReader[T]) skipItems(ctx context.Context, n int) error {
	for r.readCount < n {
		if _, err := r.Read(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (r *ZipMultiResourceItemReader[T]) readCountKey() string {
	return r.name + ".read.count"
}

// openZipArchive はリソースを ZIP として開き、ディレクトリ以外のエントリを中央ディレクトリの順に列挙します。
func openZipArchive(res resource.Resource) (*openArchive, error) {
	rc, err := res.Open()
	if err != nil {
		return nil, err
	}
	ra, size, err := readerAt(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	zr, err := zip.NewReader(ra, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		rc.Close()
		return nil, err
	}

	entries := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if isDirectory(f) {
			continue
		}
		entries = append(entries, f)
	}
	return &openArchive{res: res, closer: rc, entries: entries}, nil
}

// readerAt は ZIP の中央ディレクトリを読むための io.ReaderAt とサイズを返します。
// ランダムアクセスできないストリームはメモリに読み込みます。
func readerAt(rc io.ReadCloser) (io.ReaderAt, int64, error) {
	switch v := rc.(type) {
	case interface {
		io.ReaderAt
		Stat() (fs.FileInfo, error)
	}:
		info, err := v.Stat()
		if err != nil {
			return nil, 0, err
		}
		return v, info.Size(), nil
	case interface {
		io.ReaderAt
		Size() int64
	}:
		return v, v.Size(), nil
	}
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

func isDirectory(f *zip.File) bool {
	return strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir()
}

// zipEntryResource はアーカイブ内の 1 エントリを Resource として公開します。
type zipEntryResource struct {
	archive resource.Resource
	file    *zip.File
}

func (e *zipEntryResource) Open() (io.ReadCloser, error) {
	return e.file.Open()
}

func (e *zipEntryResource) Exists() bool {
	return true
}

func (e *zipEntryResource) Description() string {
	return fmt.Sprintf("zip entry [%s] in %s", e.file.Name, e.archive.Description())
}

var _ core.ItemReader[string] = (*ZipMultiResourceItemReader[string])(nil)
