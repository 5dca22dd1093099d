// Package serialization は ExecutionContext などの実行時状態を JSON に変換します。
package serialization

import (
	"bytes"
	"encoding/json"
	"errors"

	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/util/exception"
	logger "zipbatch/pkg/batch/util/logger"
)

const module = "serialization"

// MarshalExecutionContext は ExecutionContext を JSON バイトスライスにシリアライズします。
func MarshalExecutionContext(ec core.ExecutionContext) ([]byte, error) {
	if ec == nil {
		logger.Debugf("ExecutionContext が nil です。空のJSONオブジェクトを返します。")
		return []byte("{}"), nil
	}
	data, err := json.Marshal(ec)
	if err != nil {
		return nil, exception.NewBatchError(module, "ExecutionContext のシリアライズに失敗しました", err, false, false)
	}
	return data, nil
}

// UnmarshalExecutionContext は JSON バイトスライスを ExecutionContext にデシリアライズします。
// 数値は json.Number として復元されるため、ExecutionContext.GetInt で整数として取り出せます。
// ec の既存のキーはすべて削除されます。
func UnmarshalExecutionContext(data []byte, ec *core.ExecutionContext) error {
	if *ec == nil {
		*ec = core.NewExecutionContext()
	} else {
		for k := range *ec {
			delete(*ec, k)
		}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		logger.Debugf("ExecutionContext が空データです。空の ExecutionContext を返します。")
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(ec); err != nil {
		return exception.NewBatchError(module, "ExecutionContext のデシリアライズに失敗しました", err, false, false)
	}
	return nil
}

// MarshalFailures は []error を JSON バイトスライスにシリアライズします。
// error インターフェースは直接JSON化できないため、エラーメッセージの文字列スライスに変換します。
func MarshalFailures(failures []error) ([]byte, error) {
	msgs := make([]string, 0, len(failures))
	for _, err := range failures {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return nil, exception.NewBatchError(module, "Failures のシリアライズに失敗しました", err, false, false)
	}
	return data, nil
}

// UnmarshalFailures は JSON バイトスライスを []error にデシリアライズします。
func UnmarshalFailures(data []byte) ([]error, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return []error{}, nil
	}
	var msgs []string
	if err := json.Unmarshal(trimmed, &msgs); err != nil {
		return nil, exception.NewBatchError(module, "Failures のデシリアライズに失敗しました", err, false, false)
	}
	failures := make([]error, len(msgs))
	for i, msg := range msgs {
		failures[i] = errors.New(msg)
	}
	return failures, nil
}
