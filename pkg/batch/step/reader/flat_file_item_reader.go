package reader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/resource"
	"zipbatch/pkg/batch/util/exception"
	"zipbatch/pkg/batch/util/logger"
)

const (
	flatFileModule = "flat_file_reader"

	// DefaultMaxLineSize は 1 行あたりの最大バイト数のデフォルト値です。
	DefaultMaxLineSize = 1024 * 1024
)

// FlatFileItemReader は Resource を 1 行ずつ読み込み、LineMapper でアイテムに変換する Reader です。
type FlatFileItemReader[T any] struct {
	name        string
	resource    resource.Resource
	lineMapper  LineMapper[T]
	encoding    string
	linesToSkip int
	comments    []string
	strict      bool
	maxLineSize int

	rc        io.ReadCloser
	scanner   *bufio.Scanner
	lineCount int
	noInput   bool
	opened    bool
	failure   error

	executionContext core.ExecutionContext
}

// NewFlatFileItemReader は新しい FlatFileItemReader を作成します。
// デフォルトは UTF-8、strict モード、スキップ行なしです。
func NewFlatFileItemReader[T any](lineMapper LineMapper[T]) *FlatFileItemReader[T] {
	return &FlatFileItemReader[T]{
		name:             "FlatFileItemReader",
		lineMapper:       lineMapper,
		encoding:         "UTF-8",
		strict:           true,
		maxLineSize:      DefaultMaxLineSize,
		executionContext: core.NewExecutionContext(),
	}
}

// SetName は ExecutionContext のキーに使用する名前を設定します。
func (r *FlatFileItemReader[T]) SetName(name string) { r.name = name }

// SetResource は次に Open するリソースを設定します。
func (r *FlatFileItemReader[T]) SetResource(res resource.Resource) { r.resource = res }

// SetEncoding はリソースの文字エンコーディング (WHATWG のラベル名) を設定します。
func (r *FlatFileItemReader[T]) SetEncoding(encoding string) { r.encoding = encoding }

// SetLinesToSkip は先頭で読み飛ばす行数を設定します。
func (r *FlatFileItemReader[T]) SetLinesToSkip(n int) { r.linesToSkip = n }

// SetComments はコメント行とみなす接頭辞を設定します。
func (r *FlatFileItemReader[T]) SetComments(prefixes []string) { r.comments = prefixes }

// SetStrict は false の場合、存在しないリソースを空のストリームとして扱います。
func (r *FlatFileItemReader[T]) SetStrict(strict bool) { r.strict = strict }

// SetMaxLineSize は 1 行あたりの最大バイト数を設定します。0 以下はデフォルト値になります。
func (r *FlatFileItemReader[T]) SetMaxLineSize(n int) {
	if n <= 0 {
		n = DefaultMaxLineSize
	}
	r.maxLineSize = n
}

// Open はリソースを開き、設定された行数を読み飛ばします。
func (r *FlatFileItemReader[T]) Open(ctx context.Context, ec core.ExecutionContext) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if r.opened {
		return exception.NewInvalidStateError(flatFileModule, "FlatFileItemReader は既にオープンされています")
	}
	if r.lineMapper == nil {
		return exception.NewConfigurationError(flatFileModule, "LineMapper が設定されていません", nil)
	}
	if r.resource == nil {
		return exception.NewConfigurationError(flatFileModule, "Resource が設定されていません", nil)
	}
	if ec != nil {
		r.executionContext = ec
	}

	rc, err := r.resource.Open()
	if err != nil {
		if !r.strict && resource.IsNotExist(err) {
			logger.Warnf("FlatFileItemReader: %s が存在しないため、空の入力として扱います。", r.resource.Description())
			r.noInput = true
			r.opened = true
			return nil
		}
		return exception.NewResourceUnavailableError(flatFileModule, fmt.Sprintf("%s を開けませんでした", r.resource.Description()), err)
	}

	var src io.Reader = rc
	if !isUTF8(r.encoding) {
		enc, err := htmlindex.Get(r.encoding)
		if err != nil {
			rc.Close()
			return exception.NewConfigurationError(flatFileModule, fmt.Sprintf("未対応のエンコーディングです: %s", r.encoding), err)
		}
		src = transform.NewReader(rc, enc.NewDecoder())
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, min(64*1024, r.maxLineSize)), r.maxLineSize)

	r.rc = rc
	r.scanner = scanner
	r.lineCount = 0
	r.noInput = false
	r.opened = true

	for i := 0; i < r.linesToSkip; i++ {
		if _, ok, err := r.readLine(); err != nil {
			r.release()
			return err
		} else if !ok {
			break
		}
	}
	logger.Debugf("FlatFileItemReader: %s を開きました。", r.resource.Description())
	return nil
}

// Read は次の行を LineMapper で変換して返します。行がなくなった場合は io.EOF を返します。
// 読み込みや変換に失敗した後は、Close するまで同じエラーを返し続けます。
func (r *FlatFileItemReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
	}
	if !r.opened {
		return zero, exception.NewInvalidStateError(flatFileModule, "Open の前に Read が呼び出されました")
	}
	if r.failure != nil {
		return zero, r.failure
	}
	if r.noInput {
		return zero, io.EOF
	}

	for {
		line, ok, err := r.readLine()
		if err != nil {
			r.failure = err
			return zero, err
		}
		if !ok {
			return zero, io.EOF
		}
		if r.isComment(line) {
			continue
		}
		item, err := r.lineMapper.MapLine(line, r.lineCount)
		if err != nil {
			r.failure = exception.NewDecodeError(flatFileModule, fmt.Sprintf("%s の %d 行目をマッピングできませんでした", r.resource.Description(), r.lineCount), err)
			return zero, r.failure
		}
		return item, nil
	}
}

// Close はリソースを解放します。キャンセルされたコンテキストでも解放処理は行います。
func (r *FlatFileItemReader[T]) Close(ctx context.Context) error {
	if !r.opened {
		return nil
	}
	if err := r.release(); err != nil {
		return exception.NewBatchError(flatFileModule, "リソースのクローズに失敗しました", err, false, false)
	}
	return nil
}

// SetExecutionContext は ExecutionContext を設定します。
func (r *FlatFileItemReader[T]) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	r.executionContext = ec
	return nil
}

// GetExecutionContext は現在の行数を保存した ExecutionContext を返します。
func (r *FlatFileItemReader[T]) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if r.executionContext == nil {
		r.executionContext = core.NewExecutionContext()
	}
	r.executionContext.Put(r.name+".line.count", r.lineCount)
	return r.executionContext, nil
}

// readLine は 1 行を読み込みます。ok が false の場合はストリームの終端です。
func (r *FlatFileItemReader[T]) readLine() (line string, ok bool, err error) {
	if !r.scanner.Scan() {
		serr := r.scanner.Err()
		switch {
		case serr == nil:
			return "", false, nil
		case errors.Is(serr, bufio.ErrTooLong):
			return "", false, exception.NewDecodeError(flatFileModule,
				fmt.Sprintf("%s の %d 行目が最大行サイズ (%d バイト) を超えています", r.resource.Description(), r.lineCount+1, r.maxLineSize), serr)
		default:
			return "", false, exception.NewResourceUnavailableError(flatFileModule,
				fmt.Sprintf("%s の読み込みに失敗しました", r.resource.Description()), serr)
		}
	}
	r.lineCount++
	line = r.scanner.Text()
	if r.lineCount == 1 {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	if isUTF8(r.encoding) && !utf8.ValidString(line) {
		return "", false, exception.NewDecodeError(flatFileModule,
			fmt.Sprintf("%s の %d 行目は有効な UTF-8 テキストではありません", r.resource.Description(), r.lineCount), nil)
	}
	return line, true, nil
}

func (r *FlatFileItemReader[T]) isComment(line string) bool {
	for _, prefix := range r.comments {
		if prefix != "" && strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func (r *FlatFileItemReader[T]) release() error {
	var err error
	if r.rc != nil {
		err = r.rc.Close()
	}
	r.rc = nil
	r.scanner = nil
	r.noInput = false
	r.opened = false
	r.failure = nil
	return err
}

func isUTF8(encoding string) bool {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return true
	default:
		return false
	}
}

var _ ResourceAwareItemReader[string] = (*FlatFileItemReader[string])(nil)
