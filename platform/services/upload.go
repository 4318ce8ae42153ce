package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"form_platform/platform/auth"
	"form_platform/platform/storage"
	"form_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	maxImageSize      = 5 << 20
	maxAttachmentSize = 10 << 20

	// Uploads are rejected once the backing disk has less free space than
	// this, so the database and logs cannot be starved by uploads.
	minFreeStorageBytes = 100 << 20
)

var imageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

var attachmentExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".pdf":  "application/pdf",
	".mp4":  "video/mp4",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

type UploadService struct {
	storage  storage.Storage
	userAuth auth.IdentityProvider
}

func (s *UploadService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(s.checkSufficientStorage)

		r.Post("/image", s.UploadImage)
		r.Post("/attachment", s.UploadAttachment)
	})

	return r
}

func (s *UploadService) checkSufficientStorage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		usage, err := s.storage.Usage()
		if err != nil {
			slog.Error("error checking storage usage", "error", err)
			http.Error(w, "error checking storage usage", http.StatusInternalServerError)
			return
		}

		if usage.FreeBytes < minFreeStorageBytes {
			http.Error(w, "insufficient storage available for upload", http.StatusInsufficientStorage)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type uploadResponse struct {
	Url string `json:"url"`
}

func (s *UploadService) UploadImage(w http.ResponseWriter, r *http.Request) {
	s.upload(w, r, imageExtensions, maxImageSize, storage.ImagePath)
}

func (s *UploadService) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	s.upload(w, r, attachmentExtensions, maxAttachmentSize, storage.AttachmentPath)
}

func (s *UploadService) upload(
	w http.ResponseWriter,
	r *http.Request,
	allowed map[string]string,
	maxSize int64,
	pathFor func(uuid.UUID, string) string,
) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	// The multipart overhead is small relative to the file limits.
	if err := r.ParseMultipartForm(maxSize); err != nil {
		http.Error(w, fmt.Sprintf("file exceeds the %d byte limit or the request is not valid multipart data", maxSize), http.StatusRequestEntityTooLarge)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing 'file' field in multipart request", http.StatusBadRequest)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	contentType, ok := allowed[ext]
	if !ok {
		http.Error(w, fmt.Sprintf("file type '%v' is not allowed", ext), http.StatusUnsupportedMediaType)
		return
	}

	path := pathFor(uuid.New(), ext)
	if err := s.storage.Write(path, file); err != nil {
		slog.Error("error writing uploaded file", "path", path, "error", err)
		http.Error(w, "error storing uploaded file", http.StatusInternalServerError)
		return
	}

	slog.Info("stored upload", "path", path, "content_type", contentType, "size", header.Size)

	utils.WriteJsonResponse(w, uploadResponse{
		Url: fmt.Sprintf("%v/%v", strings.TrimSuffix(s.storage.Location(), "/"), path),
	})
}
