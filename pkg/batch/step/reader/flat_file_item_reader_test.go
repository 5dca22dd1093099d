package reader_test

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zipbatch/pkg/batch/resource"
	"zipbatch/pkg/batch/step/reader"
	"zipbatch/pkg/batch/util/exception"
)

func newFlatFileReader(data string) *reader.FlatFileItemReader[string] {
	r := reader.NewFlatFileItemReader[string](reader.PassThroughLineMapper{})
	r.SetResource(resource.NewByteArrayResource("input.txt", []byte(data)))
	return r
}

func TestFlatFileItemReader_ReadsLines(t *testing.T) {
	ctx := context.Background()
	r := newFlatFileReader("one\ntwo\r\nthree")
	require.NoError(t, r.Open(ctx, nil))
	defer r.Close(ctx)

	items, err := readAll[string](t, r)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, items)

	ec, err := r.GetExecutionContext(ctx)
	require.NoError(t, err)
	n, ok := ec.GetInt("FlatFileItemReader.line.count")
	require.True(t, ok)
	assert.Equal(t, 3, n)
}

func TestFlatFileItemReader_SkipAndComments(t *testing.T) {
	ctx := context.Background()
	r := newFlatFileReader("header\n# comment\nvalue1\n// other\nvalue2\n")
	r.SetLinesToSkip(1)
	r.SetComments([]string{"#", "//"})
	require.NoError(t, r.Open(ctx, nil))
	defer r.Close(ctx)

	items, err := readAll[string](t, r)
	require.NoError(t, err)
	assert.Equal(t, []string{"value1", "value2"}, items)
}

func TestFlatFileItemReader_SkipMoreLinesThanAvailable(t *testing.T) {
	ctx := context.Background()
	r := newFlatFileReader("a\nb\n")
	r.SetLinesToSkip(5)
	require.NoError(t, r.Open(ctx, nil))
	defer r.Close(ctx)

	_, err := r.Read(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFlatFileItemReader_StripsBOM(t *testing.T) {
	ctx := context.Background()
	r := newFlatFileReader("\uFEFFfirst\nsecond\n")
	require.NoError(t, r.Open(ctx, nil))
	defer r.Close(ctx)

	items, err := readAll[string](t, r)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, items)
}

func TestFlatFileItemReader_ShiftJIS(t *testing.T) {
	ctx := context.Background()
	// "日本" を Shift_JIS でエンコードしたバイト列
	r := newFlatFileReader("\x93\xfa\x96\x7b\nabc\n")
	r.SetEncoding("shift_jis")
	require.NoError(t, r.Open(ctx, nil))
	defer r.Close(ctx)

	items, err := readAll[string](t, r)
	require.NoError(t, err)
	assert.Equal(t, []string{"日本", "abc"}, items)
}

func TestFlatFileItemReader_UnknownEncoding(t *testing.T) {
	r := newFlatFileReader("a\n")
	r.SetEncoding("no-such-encoding")
	assert.ErrorIs(t, r.Open(context.Background(), nil), exception.ErrInvalidConfiguration)
}

func TestFlatFileItemReader_InvalidUTF8(t *testing.T) {
	ctx := context.Background()
	r := newFlatFileReader("ok\n\xc3\x28\nafter\n")
	require.NoError(t, r.Open(ctx, nil))
	defer r.Close(ctx)

	line, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", line)

	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, exception.ErrDecode)

	// 失敗後は後続の行を返さない
	line, err = r.Read(ctx)
	assert.ErrorIs(t, err, exception.ErrDecode)
	assert.Empty(t, line)
}

func TestFlatFileItemReader_LineTooLong(t *testing.T) {
	ctx := context.Background()
	r := newFlatFileReader(strings.Repeat("x", 64) + "\n")
	r.SetMaxLineSize(16)
	require.NoError(t, r.Open(ctx, nil))
	defer r.Close(ctx)

	_, err := r.Read(ctx)
	assert.ErrorIs(t, err, exception.ErrDecode)
}

func TestFlatFileItemReader_MapperError(t *testing.T) {
	ctx := context.Background()
	mapper := reader.LineMapperFunc[int](func(line string, lineNumber int) (int, error) {
		return strconv.Atoi(line)
	})
	r := reader.NewFlatFileItemReader[int](mapper)
	r.SetResource(resource.NewByteArrayResource("numbers", []byte("1\n2\nthree\n")))
	require.NoError(t, r.Open(ctx, nil))
	defer r.Close(ctx)

	items, err := readAll[int](t, r)
	assert.Equal(t, []int{1, 2}, items)
	assert.ErrorIs(t, err, exception.ErrDecode)

	var numErr *strconv.NumError
	assert.True(t, errors.As(err, &numErr))

	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, exception.ErrDecode)
}

func TestFlatFileItemReader_MissingResource(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	t.Run("strict", func(t *testing.T) {
		r := reader.NewFlatFileItemReader[string](reader.PassThroughLineMapper{})
		r.SetResource(resource.NewFileSystemResource(fs, "/missing.txt"))
		assert.ErrorIs(t, r.Open(ctx, nil), exception.ErrResourceUnavailable)
	})

	t.Run("non-strict", func(t *testing.T) {
		r := reader.NewFlatFileItemReader[string](reader.PassThroughLineMapper{})
		r.SetResource(resource.NewFileSystemResource(fs, "/missing.txt"))
		r.SetStrict(false)
		require.NoError(t, r.Open(ctx, nil))
		_, err := r.Read(ctx)
		assert.ErrorIs(t, err, io.EOF)
		assert.NoError(t, r.Close(ctx))
	})

	t.Run("no resource", func(t *testing.T) {
		r := reader.NewFlatFileItemReader[string](reader.PassThroughLineMapper{})
		assert.ErrorIs(t, r.Open(ctx, nil), exception.ErrInvalidConfiguration)
	})
}

func TestFlatFileItemReader_Lifecycle(t *testing.T) {
	ctx := context.Background()
	r := newFlatFileReader("a\n")

	_, err := r.Read(ctx)
	assert.ErrorIs(t, err, exception.ErrInvalidState)

	require.NoError(t, r.Open(ctx, nil))
	assert.ErrorIs(t, r.Open(ctx, nil), exception.ErrInvalidState)
	assert.NoError(t, r.Close(ctx))
	assert.NoError(t, r.Close(ctx))

	// 同じリソースを再度開くことができる
	require.NoError(t, r.Open(ctx, nil))
	line, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", line)
	assert.NoError(t, r.Close(ctx))
}
