package reader_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/resource"
	"zipbatch/pkg/batch/step/reader"
)

type zipEntry struct {
	name string
	body string
}

// numbered は from から to-1 までの数値を 1 行ずつ並べたテキストを返します。
func numbered(from, to int) string {
	var sb strings.Builder
	for i := from; i < to; i++ {
		fmt.Fprintf(&sb, "%d\n", i)
	}
	return sb.String()
}

func zipBytes(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		if strings.HasSuffix(e.name, "/") {
			continue
		}
		_, err = io.WriteString(w, e.body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeZip(t *testing.T, fs afero.Fs, path string, entries ...zipEntry) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, zipBytes(t, entries...), 0o644))
}

// fixtureFs は 3 種類のテスト用アーカイブを持つファイルシステムを返します。
//
//	single.zip: 1 エントリ 20 行
//	nested.zip: ディレクトリ階層内の 4 エントリ 80 行
//	mixed.zip:  2 エントリ 40 行と空のエントリ
func fixtureFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	writeZip(t, fs, "/data/single.zip",
		zipEntry{name: "lines.txt", body: numbered(0, 20)},
	)
	writeZip(t, fs, "/data/nested.zip",
		zipEntry{name: "dir1/"},
		zipEntry{name: "dir1/a.txt", body: numbered(0, 20)},
		zipEntry{name: "dir1/b.txt", body: numbered(20, 40)},
		zipEntry{name: "dir1/dir2/"},
		zipEntry{name: "dir1/dir2/c.txt", body: numbered(40, 60)},
		zipEntry{name: "dir3/d.txt", body: numbered(60, 80)},
	)
	writeZip(t, fs, "/data/mixed.zip",
		zipEntry{name: "first.txt", body: numbered(100, 120)},
		zipEntry{name: "empty.txt", body: ""},
		zipEntry{name: "sub/second.txt", body: numbered(120, 140)},
	)
	return fs
}

func newZipReader(fs afero.Fs, paths ...string) *reader.ZipMultiResourceItemReader[string] {
	archives := make([]resource.Resource, 0, len(paths))
	for _, p := range paths {
		archives = append(archives, resource.NewFileSystemResource(fs, p))
	}
	delegate := reader.NewFlatFileItemReader[string](reader.PassThroughLineMapper{})
	return reader.NewZipMultiResourceItemReader[string]("zipReader", archives, delegate)
}

// readAll は io.EOF まで読み込み、読み込んだアイテムと EOF 以外のエラーを返します。
func readAll[T any](t *testing.T, r interface {
	Read(ctx context.Context) (T, error)
}) ([]T, error) {
	t.Helper()
	ctx := context.Background()
	var items []T
	for {
		item, err := r.Read(ctx)
		if errors.Is(err, io.EOF) {
			return items, nil
		}
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
}

// trackingResource は Open と Close の回数を記録する Resource です。data が nil の場合は存在しないリソースです。
type trackingResource struct {
	name   string
	data   []byte
	opens  int
	closes int
}

func newTrackingResource(name string, data []byte) *trackingResource {
	return &trackingResource{name: name, data: data}
}

func (r *trackingResource) Open() (io.ReadCloser, error) {
	if r.data == nil {
		return nil, fs.ErrNotExist
	}
	r.opens++
	return &trackingReadCloser{Reader: bytes.NewReader(r.data), res: r}, nil
}

func (r *trackingResource) Exists() bool { return r.data != nil }

func (r *trackingResource) Description() string { return "tracking [" + r.name + "]" }

type trackingReadCloser struct {
	*bytes.Reader
	res *trackingResource
}

func (c *trackingReadCloser) Close() error {
	c.res.closes++
	return nil
}

// trackingDelegate はエントリの Open と Close の回数を記録するデリゲートです。
type trackingDelegate struct {
	*reader.FlatFileItemReader[string]
	opened int
	closed int
}

func (d *trackingDelegate) Open(ctx context.Context, ec core.ExecutionContext) error {
	if err := d.FlatFileItemReader.Open(ctx, ec); err != nil {
		return err
	}
	d.opened++
	return nil
}

func (d *trackingDelegate) Close(ctx context.Context) error {
	d.closed++
	return d.FlatFileItemReader.Close(ctx)
}

func newTrackedZipReader(archives ...resource.Resource) (*reader.ZipMultiResourceItemReader[string], *trackingDelegate) {
	delegate := &trackingDelegate{FlatFileItemReader: reader.NewFlatFileItemReader[string](reader.PassThroughLineMapper{})}
	return reader.NewZipMultiResourceItemReader[string]("tracked", archives, delegate), delegate
}
