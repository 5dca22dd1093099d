package exception

import (
	"errors"
	"fmt"
	"runtime"
)

// BatchError の種別を表すセンチネルエラーです。errors.Is で判定します。
var (
	// ErrResourceUnavailable はアーカイブなどのリソースが存在しない、読めない、または破損していることを示します。
	ErrResourceUnavailable = errors.New("resource unavailable")
	// ErrDecode はエントリのバイト列を設定されたエンコーディングのテキストとして解釈できないことを示します。
	ErrDecode = errors.New("decode error")
	// ErrInvalidState はライフサイクルの順序に反する呼び出しを示します。
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidConfiguration は設定値が不正であることを示します。
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// BatchError はバッチ処理中に発生するカスタムエラー型です。
// エラーの発生元モジュール、メッセージ、ラップされた元のエラー、エラー種別、
// そしてリトライ可能か、スキップ可能かのフラグを保持します。
type BatchError struct {
	Module      string // エラーが発生したモジュール (例: "zip_reader", "flat_file_reader", "config")
	Message     string // エラーの簡潔な説明
	OriginalErr error  // ラップされた元のエラー
	Kind        error  // エラー種別 (ErrResourceUnavailable など)。nil の場合は種別なし
	isRetryable bool
	isSkippable bool
	StackTrace  string // スタックトレース (デバッグ用)
}

// NewBatchError は新しい BatchError のインスタンスを作成します。
func NewBatchError(module, message string, originalErr error, isRetryable, isSkippable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

// NewBatchErrorf はフォーマット文字列を使用して、リトライ不可・スキップ不可の BatchError を作成します。
// 元のエラーを保持する必要がある場合は NewBatchError を使用してください。
func NewBatchErrorf(module, format string, a ...any) *BatchError {
	return &BatchError{
		Module:     module,
		Message:    fmt.Sprintf(format, a...),
		StackTrace: captureStack(),
	}
}

// NewResourceUnavailableError はリソース取得失敗を表す BatchError を作成します。
func NewResourceUnavailableError(module, message string, originalErr error) *BatchError {
	e := NewBatchError(module, message, originalErr, false, false)
	e.Kind = ErrResourceUnavailable
	return e
}

// NewDecodeError はテキストのデコード失敗を表す BatchError を作成します。
func NewDecodeError(module, message string, originalErr error) *BatchError {
	e := NewBatchError(module, message, originalErr, false, false)
	e.Kind = ErrDecode
	return e
}

// NewInvalidStateError はライフサイクル違反を表す BatchError を作成します。
func NewInvalidStateError(module, message string) *BatchError {
	e := NewBatchError(module, message, nil, false, false)
	e.Kind = ErrInvalidState
	return e
}

// NewConfigurationError は設定不備を表す BatchError を作成します。
func NewConfigurationError(module, message string, originalErr error) *BatchError {
	e := NewBatchError(module, message, originalErr, false, false)
	e.Kind = ErrInvalidConfiguration
	return e
}

// Error は error インターフェースの実装です。
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap は errors.Unwrap のために元のエラーを返します。
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// Is はエラー種別のセンチネルと一致するかを判定します。
func (e *BatchError) Is(target error) bool {
	return e.Kind != nil && e.Kind == target
}

// IsRetryable はこのエラーがリトライ可能かどうかを返します。
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable はこのエラーがスキップ可能かどうかを返します。
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// IsRetryable は err のチェーン内の BatchError がリトライ可能かどうかを返します。
func IsRetryable(err error) bool {
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	return false
}

// IsSkippable は err のチェーン内の BatchError がスキップ可能かどうかを返します。
func IsSkippable(err error) bool {
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsSkippable()
	}
	return false
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
