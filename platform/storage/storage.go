// Package storage abstracts the object store that holds template images and
// question attachments. The rest of the platform only ever persists the URL
// strings this package hands back.
package storage

import (
	"fmt"
	"io"

	"github.com/google/uuid"
)

type UsageStats struct {
	TotalBytes uint64
	FreeBytes  uint64
}

type Storage interface {
	Read(path string) (io.ReadCloser, error)

	Write(path string, data io.Reader) error

	Delete(path string) error

	Exists(path string) (bool, error)

	Size(path string) (int64, error)

	Usage() (UsageStats, error)

	// Location returns the externally visible base for building URLs to
	// stored objects.
	Location() string
}

func ImagePath(id uuid.UUID, ext string) string {
	return fmt.Sprintf("images/%v%v", id, ext)
}

func AttachmentPath(id uuid.UUID, ext string) string {
	return fmt.Sprintf("attachments/%v%v", id, ext)
}
