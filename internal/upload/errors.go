package upload

import (
	"errors"
	"fmt"
)

// Ошибки валидации. Файл при этих ошибках не записывается.
var (
	// ErrNoFile — файл не передан.
	ErrNoFile = errors.New("файл не передан")
	// ErrUnsupportedType — расширение или содержимое не входит в разрешённый набор.
	ErrUnsupportedType = errors.New("недопустимый тип файла")
	// ErrTooLarge — размер превышает лимит.
	ErrTooLarge = errors.New("файл слишком большой")
	// ErrInvalidReference — ссылка указывает за пределы директории контента.
	ErrInvalidReference = errors.New("некорректная ссылка на файл")
)

// StorageError — ошибка файловой системы при записи, замене или удалении.
// Автоматически не повторяется.
type StorageError struct {
	// Op — операция (store, replace, remove)
	Op string
	// Ref — ссылка на файл, с которым работали
	Ref string
	Err error
}

func (e *StorageError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("ошибка хранилища (%s): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ошибка хранилища (%s %s): %v", e.Op, e.Ref, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError сообщает, что в цепочке ошибок есть *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
