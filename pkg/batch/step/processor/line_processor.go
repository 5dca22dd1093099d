package processor

import (
	"context"
	"strings"

	"zipbatch/pkg/batch/config"
	core "zipbatch/pkg/batch/job/core"
)

// LineProcessor はアーカイブから読み込んだ行を設定に従って加工します。
// 空行の除外が有効な場合、空行に対しては core.ErrItemFiltered を返します。
type LineProcessor struct {
	trim           bool
	skipBlankLines bool
}

// NewLineProcessor は ProcessorConfig から LineProcessor を作成します。
func NewLineProcessor(cfg config.ProcessorConfig) *LineProcessor {
	return &LineProcessor{
		trim:           cfg.Trim,
		skipBlankLines: cfg.SkipBlankLines,
	}
}

// Process は行を加工して返します。
func (p *LineProcessor) Process(ctx context.Context, line string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	if p.trim {
		line = strings.TrimSpace(line)
	}
	if p.skipBlankLines && strings.TrimSpace(line) == "" {
		return "", core.ErrItemFiltered
	}
	return line, nil
}

var _ core.ItemProcessor[string, string] = (*LineProcessor)(nil)
