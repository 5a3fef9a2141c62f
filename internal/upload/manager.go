// Пакет upload — приём изображений: проверка типа и размера,
// запись в директорию контента под уникальным именем, замена и удаление.
//
// Ссылка на файл (reference) — путь относительно корня контента
// через прямой слэш, например uploads/PRODUCT-1718000000000-a1b2c3d4.png.
// Корень контента раздаётся как статика, поэтому ссылка совпадает с URL-путём.
package upload

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

// sniffLen — сколько байт читается для определения типа по сигнатуре.
const sniffLen = 261

// Policy — правила приёма файла для конкретного endpoint.
type Policy struct {
	// MaxSize — максимальный размер в байтах
	MaxSize int64
	// Extensions — разрешённые расширения с точкой (.jpg, .png)
	Extensions []string
	// Prefix — префикс имени файла (PRODUCT, PROFILE)
	Prefix string
}

// allows проверяет расширение без учёта регистра.
func (p Policy) allows(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range p.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// allowsKind проверяет тип, определённый по содержимому.
func (p Policy) allowsKind(kindExt string) bool {
	kindExt = normalizeExt("." + kindExt)
	for _, e := range p.Extensions {
		if normalizeExt(e) == kindExt {
			return true
		}
	}
	return false
}

// normalizeExt сводит синонимы расширений к одному виду.
func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext == ".jpeg" {
		return ".jpg"
	}
	return ext
}

// File — загружаемый файл.
type File struct {
	// Name — исходное имя файла от клиента
	Name string
	// Size — заявленный размер в байтах
	Size int64
	// Content — содержимое; после Validate позиция возвращается в начало
	Content io.ReadSeeker
}

// Manager — управление файлами в директории контента.
type Manager struct {
	root   string
	fs     fileSystem
	now    func() time.Time
	logger *slog.Logger
}

// New создаёт Manager с корнем root. Корень создаётся, если его нет.
func New(root string, logger *slog.Logger) (*Manager, error) {
	return newManager(root, osFS{}, logger)
}

func newManager(root string, fsys fileSystem, logger *slog.Logger) (*Manager, error) {
	if err := fsys.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию контента %s: %w", root, err)
	}
	return &Manager{
		root:   root,
		fs:     fsys,
		now:    time.Now,
		logger: logger.With(slog.String("component", "upload")),
	}, nil
}

// Root возвращает корневую директорию контента.
func (m *Manager) Root() string {
	return m.root
}

// Validate проверяет расширение, размер и сигнатуру содержимого.
// Возвращает ErrNoFile, ErrUnsupportedType или ErrTooLarge.
func (m *Manager) Validate(p Policy, f *File) error {
	if f == nil || f.Content == nil {
		return ErrNoFile
	}

	ext := filepath.Ext(f.Name)
	if !p.allows(ext) {
		return fmt.Errorf("%w: расширение %q, допустимые: %s",
			ErrUnsupportedType, ext, strings.Join(p.Extensions, ", "))
	}

	if f.Size > p.MaxSize {
		return fmt.Errorf("%w: %d байт, максимум %d", ErrTooLarge, f.Size, p.MaxSize)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f.Content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("ошибка чтения файла: %w", err)
	}
	if _, err := f.Content.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("ошибка перемотки файла: %w", err)
	}

	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown || !filetype.IsImage(head[:n]) {
		return fmt.Errorf("%w: содержимое не является изображением", ErrUnsupportedType)
	}
	if !p.allowsKind(kind.Extension) {
		return fmt.Errorf("%w: содержимое %s не входит в допустимые типы",
			ErrUnsupportedType, kind.MIME.Value)
	}

	return nil
}

// Store записывает файл в dir (относительно корня) под сгенерированным именем
// и возвращает ссылку на него. Директория создаётся при необходимости.
//
// Паттерн: temp файл → запись → fsync → rename. При ошибке temp файл удаляется.
func (m *Manager) Store(p Policy, f *File, dir string) (string, error) {
	ref, err := m.store(p, f, dir)
	uploadsTotal.WithLabelValues("store", resultLabel(err)).Inc()
	return ref, err
}

func (m *Manager) store(p Policy, f *File, dir string) (string, error) {
	if f == nil || f.Content == nil {
		return "", ErrNoFile
	}

	dirPath, err := m.resolve(dir)
	if err != nil {
		return "", err
	}
	if err := m.fs.MkdirAll(dirPath, 0o750); err != nil {
		return "", &StorageError{Op: "store", Err: err}
	}

	name := m.generateName(p.Prefix, f.Name)
	ref := path.Join(filepath.ToSlash(dir), name)
	fullPath := filepath.Join(dirPath, name)
	tmpPath := fullPath + ".tmp"

	out, err := m.fs.Create(tmpPath)
	if err != nil {
		return "", &StorageError{Op: "store", Ref: ref, Err: err}
	}

	// Читаем на байт больше лимита, чтобы поймать заниженный Size.
	written, err := io.Copy(out, io.LimitReader(f.Content, p.MaxSize+1))
	if err != nil {
		out.Close()
		m.fs.Remove(tmpPath)
		return "", &StorageError{Op: "store", Ref: ref, Err: err}
	}
	if written > p.MaxSize {
		out.Close()
		m.fs.Remove(tmpPath)
		return "", fmt.Errorf("%w: больше %d байт", ErrTooLarge, p.MaxSize)
	}

	if err := out.Sync(); err != nil {
		out.Close()
		m.fs.Remove(tmpPath)
		return "", &StorageError{Op: "store", Ref: ref, Err: fmt.Errorf("fsync: %w", err)}
	}
	if err := out.Close(); err != nil {
		m.fs.Remove(tmpPath)
		return "", &StorageError{Op: "store", Ref: ref, Err: err}
	}

	if err := m.fs.Rename(tmpPath, fullPath); err != nil {
		m.fs.Remove(tmpPath)
		return "", &StorageError{Op: "store", Ref: ref, Err: err}
	}

	m.logger.Debug("Файл сохранён",
		slog.String("ref", ref),
		slog.Int64("size", written),
	)
	return ref, nil
}

// Replace записывает новый файл и передаёт его ссылку в commit,
// который сохраняет её в записи-владельце.
//
// Порядок: новый файл → commit → удаление старого.
// Ошибка записи или commit оставляет старый файл на месте, а новый
// (если записан) удаляется. Ошибка удаления старого файла только логируется.
func (m *Manager) Replace(p Policy, oldRef string, f *File, dir string, commit func(newRef string) error) (string, error) {
	newRef, err := m.store(p, f, dir)
	if err != nil {
		uploadsTotal.WithLabelValues("replace", resultLabel(err)).Inc()
		var se *StorageError
		if errors.As(err, &se) {
			se.Op = "replace"
		}
		return "", err
	}

	if err := commit(newRef); err != nil {
		if rmErr := m.remove(newRef); rmErr != nil {
			m.logger.Warn("Не удалось удалить новый файл после отказа commit",
				slog.String("ref", newRef),
				slog.String("error", rmErr.Error()),
			)
		}
		uploadsTotal.WithLabelValues("replace", "commit_failed").Inc()
		return "", err
	}

	if oldRef != "" && oldRef != newRef {
		if err := m.remove(oldRef); err != nil {
			m.logger.Warn("Не удалось удалить заменённый файл",
				slog.String("ref", oldRef),
				slog.String("error", err.Error()),
			)
		}
	}

	uploadsTotal.WithLabelValues("replace", "ok").Inc()
	return newRef, nil
}

// Remove удаляет файл по ссылке. Отсутствие файла ошибкой не считается.
func (m *Manager) Remove(ref string) error {
	err := m.remove(ref)
	uploadsTotal.WithLabelValues("remove", resultLabel(err)).Inc()
	return err
}

func (m *Manager) remove(ref string) error {
	if ref == "" {
		return nil
	}
	fullPath, err := m.resolve(ref)
	if err != nil {
		return err
	}
	if err := m.fs.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &StorageError{Op: "remove", Ref: ref, Err: err}
	}
	return nil
}

// Exists сообщает, существует ли файл по ссылке.
func (m *Manager) Exists(ref string) bool {
	fullPath, err := m.resolve(ref)
	if err != nil {
		return false
	}
	_, err = m.fs.Stat(fullPath)
	return err == nil
}

// CheckReady проверяет, что корень контента доступен на запись.
// Возвращает статус ("ok", "fail") и сообщение.
func (m *Manager) CheckReady() (status string, message string) {
	probe := filepath.Join(m.root, ".ready-"+uuid.New().String()[:8])
	f, err := m.fs.Create(probe)
	if err != nil {
		return "fail", fmt.Sprintf("директория контента недоступна на запись: %v", err)
	}
	f.Close()
	m.fs.Remove(probe)
	return "ok", "директория контента доступна"
}

// resolve переводит относительную ссылку в путь на диске,
// отклоняя абсолютные пути и выход за пределы корня.
func (m *Manager) resolve(ref string) (string, error) {
	clean := path.Clean(filepath.ToSlash(ref))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") || filepath.IsAbs(ref) {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	return filepath.Join(m.root, filepath.FromSlash(clean)), nil
}

// generateName генерирует имя файла: {PREFIX}-{unix ms}-{uuid[:8]}{ext}.
// Пример: PRODUCT-1718000000000-a1b2c3d4.png
func (m *Manager) generateName(prefix, originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	uid := uuid.New().String()[:8]
	ts := m.now().UnixMilli()
	if prefix == "" {
		return fmt.Sprintf("%d-%s%s", ts, uid, ext)
	}
	return fmt.Sprintf("%s-%d-%s%s", prefix, ts, uid, ext)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	case IsStorageError(err):
		return "storage_error"
	default:
		return "error"
	}
}
