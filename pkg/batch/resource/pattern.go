package resource

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"zipbatch/pkg/batch/util/exception"
	"zipbatch/pkg/batch/util/logger"
)

// ResolveResources はパスまたは glob パターンのリストを FileSystemResource のリストに展開します。
// パターンの記述順は保持され、1 つのパターンに一致したファイルはパス名順に並びます。
// メタ文字を含まないパスは存在しなくてもそのまま残し、Open 時にエラーとして報告させます。
func ResolveResources(fs afero.Fs, patterns []string) ([]Resource, error) {
	resources := make([]Resource, 0, len(patterns))
	for _, pattern := range patterns {
		if !hasMeta(pattern) {
			resources = append(resources, NewFileSystemResource(fs, pattern))
			continue
		}
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, exception.NewConfigurationError("resource", "不正な glob パターンです: "+pattern, err)
		}
		matches, err := afero.Glob(fs, pattern)
		if err != nil {
			return nil, exception.NewConfigurationError("resource", "不正な glob パターンです: "+pattern, err)
		}
		if len(matches) == 0 {
			logger.Warnf("パターン '%s' に一致するリソースがありません。", pattern)
		}
		for _, m := range matches {
			res := NewFileSystemResource(fs, m)
			logger.Debugf("パターン '%s' に一致しました: %s", pattern, res.Path())
			resources = append(resources, res)
		}
	}
	logger.Debugf("%d 件のパターンから %d 件のリソースを解決しました。", len(patterns), len(resources))
	return resources, nil
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, `*?[\`)
}
