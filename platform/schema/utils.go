package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrTopicNotFound    = errors.New("topic not found")
	ErrFormNotFound     = errors.New("form not found")
	ErrDbAccessFailed   = errors.New("db access failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetTemplate(templateId uuid.UUID, db *gorm.DB, loadQuestions, loadTags, loadOwner bool) (Template, error) {
	var template Template

	// Permissions are always loaded since access checks depend on them and
	// must see the template's current state.
	result := db.Preload("Permissions")
	if loadQuestions {
		result = result.Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order ASC")
		})
	}
	if loadTags {
		result = result.Preload("Tags")
	}
	if loadOwner {
		result = result.Preload("User").Preload("Topic")
	}
	result = result.First(&template, "id = ?", templateId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return template, ErrTemplateNotFound
		}
		slog.Error("sql error in get template", "template_id", templateId, "error", result.Error)
		return template, ErrDbAccessFailed
	}

	return template, nil
}

func GetTopic(topicId uuid.UUID, db *gorm.DB) (Topic, error) {
	var topic Topic

	result := db.First(&topic, "id = ?", topicId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return topic, ErrTopicNotFound
		}
		slog.Error("sql error in get topic", "topic_id", topicId, "error", result.Error)
		return topic, ErrDbAccessFailed
	}

	return topic, nil
}

func GetForm(formId uuid.UUID, db *gorm.DB) (Form, error) {
	var form Form

	result := db.Preload("Answers").Preload("User").First(&form, "id = ?", formId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return form, ErrFormNotFound
		}
		slog.Error("sql error in get form", "form_id", formId, "error", result.Error)
		return form, ErrDbAccessFailed
	}

	return form, nil
}
