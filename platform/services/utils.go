package services

import (
	"errors"
	"log/slog"
	"net/http"

	"form_platform/platform/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

func checkTopicExists(txn *gorm.DB, topicId uuid.UUID) error {
	if _, err := schema.GetTopic(topicId, txn); err != nil {
		if errors.Is(err, schema.ErrTopicNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func checkUserExists(txn *gorm.DB, userId uuid.UUID) error {
	if _, err := schema.GetUser(userId, txn); err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func loadTemplateForAccess(txn *gorm.DB, templateId uuid.UUID, loadQuestions bool) (schema.Template, error) {
	template, err := schema.GetTemplate(templateId, txn, loadQuestions, false, false)
	if err != nil {
		if errors.Is(err, schema.ErrTemplateNotFound) {
			return template, CodedError(err, http.StatusNotFound)
		}
		return template, CodedError(err, http.StatusInternalServerError)
	}
	return template, nil
}
