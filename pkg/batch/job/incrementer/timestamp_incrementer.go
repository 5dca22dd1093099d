// Package incrementer はジョブ起動時に JobParameters を補う JobParametersIncrementer を提供します。
package incrementer

import (
	"fmt"
	"strconv"
	"time"

	core "zipbatch/pkg/batch/job/core"
	logger "zipbatch/pkg/batch/util/logger"
)

// TimestampIncrementer はジョブパラメータに起動時刻 (Unix ミリ秒) を設定します。
// 既に値が存在する場合は現在時刻で上書きします。
type TimestampIncrementer struct {
	name string
	now  func() time.Time
}

// NewTimestampIncrementer は新しい TimestampIncrementer のインスタンスを作成します。
func NewTimestampIncrementer(name string) *TimestampIncrementer {
	return &TimestampIncrementer{name: name, now: time.Now}
}

// GetNext は params のコピーに起動時刻を追加して返します。params 自体は変更しません。
func (i *TimestampIncrementer) GetNext(params core.JobParameters) core.JobParameters {
	nextParams := core.NewJobParameters()
	for k, v := range params.Params {
		nextParams.Put(k, v)
	}

	timestamp := i.now().UnixMilli()
	nextParams.Put(i.name, strconv.FormatInt(timestamp, 10))
	logger.Debugf("JobParametersIncrementer '%s': '%s' を %d に設定しました。", i.name, i.name, timestamp)
	return nextParams
}

// String は TimestampIncrementer の文字列表現を返します。
func (i *TimestampIncrementer) String() string {
	return fmt.Sprintf("TimestampIncrementer[name=%s]", i.name)
}

var _ core.JobParametersIncrementer = (*TimestampIncrementer)(nil)
