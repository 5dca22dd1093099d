// Package resource はリーダーやライターが扱う入出力リソースを抽象化します。
package resource

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/afero"
)

// Resource は読み込み可能な名前付きリソースです。
// Open はリソースごとに新しいストリームを返し、呼び出し側が Close する責任を持ちます。
type Resource interface {
	Open() (io.ReadCloser, error)
	Exists() bool
	Description() string
}

// FileSystemResource は afero.Fs 上のファイルを表す Resource です。
type FileSystemResource struct {
	fs   afero.Fs
	path string
}

// NewFileSystemResource は新しい FileSystemResource を作成します。
func NewFileSystemResource(fs afero.Fs, path string) *FileSystemResource {
	return &FileSystemResource{fs: fs, path: path}
}

// Open はファイルを開きます。返される値は afero.File であり、io.ReaderAt と Stat を実装します。
func (r *FileSystemResource) Open() (io.ReadCloser, error) {
	f, err := r.fs.Open(r.path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", r.path)
	}
	return f, nil
}

// Exists はファイルが存在するかどうかを返します。
func (r *FileSystemResource) Exists() bool {
	ok, err := afero.Exists(r.fs, r.path)
	return err == nil && ok
}

// Path はリソースのパスを返します。
func (r *FileSystemResource) Path() string {
	return r.path
}

// Description はリソースの説明を返します。
func (r *FileSystemResource) Description() string {
	return fmt.Sprintf("file [%s]", r.path)
}

// ByteArrayResource はメモリ上のバイト列を表す Resource です。
type ByteArrayResource struct {
	name string
	data []byte
}

// NewByteArrayResource は新しい ByteArrayResource を作成します。
func NewByteArrayResource(name string, data []byte) *ByteArrayResource {
	return &ByteArrayResource{name: name, data: data}
}

// Open はバイト列を読み込むストリームを返します。
func (r *ByteArrayResource) Open() (io.ReadCloser, error) {
	if r.data == nil {
		return nil, fs.ErrNotExist
	}
	return &byteArrayReadCloser{Reader: bytes.NewReader(r.data)}, nil
}

// Exists はバイト列が設定されているかどうかを返します。
func (r *ByteArrayResource) Exists() bool {
	return r.data != nil
}

// Description はリソースの説明を返します。
func (r *ByteArrayResource) Description() string {
	return fmt.Sprintf("byte array [%s]", r.name)
}

type byteArrayReadCloser struct {
	*bytes.Reader
}

func (b *byteArrayReadCloser) Close() error {
	return nil
}

// IsNotExist は Open のエラーがリソース不在によるものかを判定します。
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
