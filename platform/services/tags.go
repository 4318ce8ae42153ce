package services

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"form_platform/platform/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// resolveTags maps a set of free text tag names to Tag rows inside the
// caller's transaction, creating the missing ones. Names are trimmed and
// deduplicated; empty names are ignored.
//
// Tags are a process wide shared vocabulary, so two concurrent transactions
// can race to create the same name. The name column is unique; a duplicate
// key failure on create means the other writer won and the tag is re-fetched
// instead of failing the mutation.
func resolveTags(txn *gorm.DB, names []string) ([]schema.Tag, error) {
	seen := make(map[string]bool, len(names))
	tags := make([]schema.Tag, 0, len(names))

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		tag, err := resolveTag(txn, name)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}

	return tags, nil
}

func resolveTag(txn *gorm.DB, name string) (schema.Tag, error) {
	var tag schema.Tag

	result := txn.First(&tag, "name = ?", name)
	if result.Error == nil {
		return tag, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		slog.Error("sql error looking up tag", "name", name, "error", result.Error)
		return tag, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	tag = schema.Tag{Id: uuid.New(), Name: name}
	result = txn.Create(&tag)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return refetchTag(txn, name)
		}
		slog.Error("sql error creating tag", "name", name, "error", result.Error)
		return tag, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	return tag, nil
}

func refetchTag(txn *gorm.DB, name string) (schema.Tag, error) {
	var tag schema.Tag
	result := txn.First(&tag, "name = ?", name)
	if result.Error != nil {
		slog.Error("sql error re-fetching tag after duplicate create", "name", name, "error", result.Error)
		return tag, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	return tag, nil
}
