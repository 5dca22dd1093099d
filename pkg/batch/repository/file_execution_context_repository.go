package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/util/exception"
	logger "zipbatch/pkg/batch/util/logger"
	"zipbatch/pkg/batch/util/serialization"
)

const fileRepositoryModule = "execution_context_repository"

// checkpointDocument はチェックポイントファイルの JSON 形式です。
type checkpointDocument struct {
	JobName          string          `json:"job_name"`
	StepName         string          `json:"step_name"`
	JobExecutionID   string          `json:"job_execution_id,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
	ExecutionContext json.RawMessage `json:"execution_context"`
	Failures         json.RawMessage `json:"failures,omitempty"`
}

// FileExecutionContextRepository は afero.Fs 上の JSON ファイルにチェックポイントを保存します。
type FileExecutionContextRepository struct {
	fs   afero.Fs
	path string
}

// NewFileExecutionContextRepository は新しい FileExecutionContextRepository を作成します。
func NewFileExecutionContextRepository(fs afero.Fs, path string) *FileExecutionContextRepository {
	return &FileExecutionContextRepository{fs: fs, path: path}
}

// Load はチェックポイントファイルを読み込みます。
// ファイルが別のジョブまたはステップのものである場合は警告を出力し、空の ExecutionContext を返します。
func (r *FileExecutionContextRepository) Load(ctx context.Context, jobName, stepName string) (core.ExecutionContext, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	exists, err := afero.Exists(r.fs, r.path)
	if err != nil {
		return nil, exception.NewResourceUnavailableError(fileRepositoryModule, fmt.Sprintf("チェックポイント '%s' の確認に失敗しました", r.path), err)
	}
	if !exists {
		logger.Debugf("チェックポイント '%s' は存在しません。最初から実行します。", r.path)
		return core.NewExecutionContext(), nil
	}

	data, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		return nil, exception.NewResourceUnavailableError(fileRepositoryModule, fmt.Sprintf("チェックポイント '%s' の読み込みに失敗しました", r.path), err)
	}
	var doc checkpointDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, exception.NewDecodeError(fileRepositoryModule, fmt.Sprintf("チェックポイント '%s' の形式が不正です", r.path), err)
	}
	if doc.JobName != jobName || doc.StepName != stepName {
		logger.Warnf("チェックポイント '%s' はジョブ '%s' ステップ '%s' のものです。無視して最初から実行します。", r.path, doc.JobName, doc.StepName)
		return core.NewExecutionContext(), nil
	}

	ec := core.NewExecutionContext()
	if err := serialization.UnmarshalExecutionContext(doc.ExecutionContext, &ec); err != nil {
		return nil, err
	}
	if failures, err := serialization.UnmarshalFailures(doc.Failures); err == nil && len(failures) > 0 {
		logger.Infof("前回の実行 (ID: %s) は次のエラーで終了しています: %v", doc.JobExecutionID, failures[len(failures)-1])
	}
	logger.Infof("チェックポイント '%s' (更新日時: %s) から ExecutionContext を復元しました。", r.path, doc.UpdatedAt.Format(time.RFC3339))
	return ec, nil
}

// Save は StepExecution の ExecutionContext をチェックポイントファイルに書き込みます。
// 一時ファイルに書き込んでからリネームするため、書き込み途中のファイルが残ることはありません。
func (r *FileExecutionContextRepository) Save(ctx context.Context, stepExecution *core.StepExecution) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	ecData, err := serialization.MarshalExecutionContext(stepExecution.ExecutionContext)
	if err != nil {
		return err
	}
	failures, err := serialization.MarshalFailures(stepExecution.Failures)
	if err != nil {
		return err
	}
	doc := checkpointDocument{
		StepName:         stepExecution.StepName,
		UpdatedAt:        time.Now().UTC(),
		ExecutionContext: ecData,
		Failures:         failures,
	}
	if je := stepExecution.JobExecution; je != nil {
		doc.JobName = je.JobName
		doc.JobExecutionID = je.ID
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return exception.NewBatchError(fileRepositoryModule, "チェックポイントのシリアライズに失敗しました", err, false, false)
	}

	if dir := filepath.Dir(r.path); dir != "." && dir != "" {
		if err := r.fs.MkdirAll(dir, 0o755); err != nil {
			return exception.NewResourceUnavailableError(fileRepositoryModule, fmt.Sprintf("ディレクトリ '%s' の作成に失敗しました", dir), err)
		}
	}
	tmp := r.path + ".tmp"
	if err := afero.WriteFile(r.fs, tmp, data, 0o644); err != nil {
		return exception.NewResourceUnavailableError(fileRepositoryModule, fmt.Sprintf("チェックポイント '%s' の書き込みに失敗しました", tmp), err)
	}
	if err := r.fs.Rename(tmp, r.path); err != nil {
		return exception.NewResourceUnavailableError(fileRepositoryModule, fmt.Sprintf("チェックポイント '%s' の置き換えに失敗しました", r.path), err)
	}
	logger.Debugf("チェックポイント '%s' を保存しました。", r.path)
	return nil
}

// Delete はチェックポイントファイルを削除します。
func (r *FileExecutionContextRepository) Delete(ctx context.Context) error {
	if err := r.fs.Remove(r.path); err != nil {
		if exists, _ := afero.Exists(r.fs, r.path); !exists {
			return nil
		}
		return exception.NewResourceUnavailableError(fileRepositoryModule, fmt.Sprintf("チェックポイント '%s' の削除に失敗しました", r.path), err)
	}
	logger.Debugf("チェックポイント '%s' を削除しました。", r.path)
	return nil
}

var _ ExecutionContextRepository = (*FileExecutionContextRepository)(nil)
