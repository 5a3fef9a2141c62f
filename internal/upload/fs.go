package upload

import (
	"io"
	"os"
)

// fileSystem — операции ФС, которые использует Manager.
// В тестах подменяется реализацией с управляемыми отказами.
type fileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	Create(name string) (writableFile, error)
	Rename(oldpath, newpath string) error
	Remove(name string) error
	Stat(name string) (os.FileInfo, error)
}

// writableFile — записываемый файл.
type writableFile interface {
	io.Writer
	Sync() error
	Close() error
}

// osFS — реализация fileSystem поверх пакета os.
type osFS struct{}

func (osFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

func (osFS) Create(name string) (writableFile, error) {
	return os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
}

func (osFS) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }
func (osFS) Remove(name string) error { return os.Remove(name) }
func (osFS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
