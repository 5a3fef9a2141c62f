// handler.go — общие помощники HTTP-обработчиков Borrowbox:
// JSON-ответы, перевод ошибок сервисного слоя в HTTP, разбор multipart.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/borrowbox/internal/api/errors"
	"github.com/bigkaa/borrowbox/internal/service"
	"github.com/bigkaa/borrowbox/internal/upload"
)

// multipartOverhead — запас на заголовки и текстовые поля multipart сверх лимита файла.
const multipartOverhead = 1 << 20

// multipartMemory — объём формы, удерживаемый в памяти; остальное уходит во временные файлы.
const multipartMemory = 1 << 20

// imageField — имя поля multipart с изображением.
const imageField = "image"

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// successResponse — ответ с данными.
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

// listResponse — ответ со списком.
type listResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
	Data    any  `json:"data"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successResponse{Success: true, Data: data})
}

func writeList(w http.ResponseWriter, count int, data any) {
	writeJSON(w, http.StatusOK, listResponse{Success: true, Count: count, Data: data})
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
// notFoundMsg — сообщение для 404, зависящее от ресурса.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) {
	var storageErr *upload.StorageError
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, upload.ErrNoFile):
		apierrors.ValidationError(w, "Please upload a file")
	case errors.Is(err, upload.ErrTooLarge):
		apierrors.FileTooLarge(w, err.Error())
	case errors.Is(err, upload.ErrUnsupportedType):
		apierrors.UnsupportedFileType(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, notFoundMsg)
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, "Not authorized to perform this action")
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.As(err, &storageErr):
		logger.Error("Ошибка файлового хранилища",
			slog.String("op", storageErr.Op),
			slog.String("ref", storageErr.Ref),
			slog.String("error", storageErr.Err.Error()),
		)
		apierrors.StorageError(w, "File storage error")
	default:
		logger.Error("Внутренняя ошибка", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Internal server error")
	}
}

// parseMultipart ограничивает тело запроса и разбирает multipart-форму.
// Тело больше maxFileSize+multipartOverhead отклоняется как ErrTooLarge.
// Запросы без multipart (urlencoded) разбираются как обычная форма.
func parseMultipart(w http.ResponseWriter, r *http.Request, maxFileSize int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFileSize+multipartOverhead)

	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: тело запроса больше %d байт", upload.ErrTooLarge, maxErr.Limit)
		}
		return fmt.Errorf("%w: некорректная форма: %v", service.ErrValidation, err)
	}
	return nil
}

// formImage возвращает файл из поля image или nil, если поле не передано.
// Вызывающий закрывает файл через возвращённую функцию.
func formImage(r *http.Request) (*upload.File, func(), error) {
	if r.MultipartForm == nil {
		return nil, func() {}, nil
	}
	f, header, err := r.FormFile(imageField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, fmt.Errorf("%w: поле %s: %v", service.ErrValidation, imageField, err)
	}
	return &upload.File{Name: header.Filename, Size: header.Size, Content: f}, func() { _ = f.Close() }, nil
}

// cleanupMultipart удаляет временные файлы формы.
func cleanupMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

// formValue возвращает значение поля формы или nil, если поле отсутствует.
func formValue(r *http.Request, key string) *string {
	if r.MultipartForm != nil {
		if vals, ok := r.MultipartForm.Value[key]; ok && len(vals) > 0 {
			return &vals[0]
		}
	}
	if vals, ok := r.PostForm[key]; ok && len(vals) > 0 {
		return &vals[0]
	}
	return nil
}

// isJSON проверяет, что тело запроса — JSON.
func isJSON(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "application/json")
}
