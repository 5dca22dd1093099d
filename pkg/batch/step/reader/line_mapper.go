package reader

// LineMapper は 1 行のテキストをアイテムに変換する戦略です。
// lineNumber はリソース先頭からの 1 始まりの行番号です (スキップ行とコメント行を含む)。
type LineMapper[T any] interface {
	MapLine(line string, lineNumber int) (T, error)
}

// LineMapperFunc は関数を LineMapper として使用するためのアダプタです。
type LineMapperFunc[T any] func(line string, lineNumber int) (T, error)

// MapLine は f(line, lineNumber) を呼び出します。
func (f LineMapperFunc[T]) MapLine(line string, lineNumber int) (T, error) {
	return f(line, lineNumber)
}

// PassThroughLineMapper は行をそのまま返す LineMapper です。
type PassThroughLineMapper struct{}

// MapLine は line をそのまま返します。
func (PassThroughLineMapper) MapLine(line string, _ int) (string, error) {
	return line, nil
}

var _ LineMapper[string] = PassThroughLineMapper{}
