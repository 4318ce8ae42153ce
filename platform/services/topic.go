package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"form_platform/platform/auth"
	"form_platform/platform/schema"
	"form_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TopicService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *TopicService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/list", s.List)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly(s.db))

		r.Post("/create", s.Create)
		r.Delete("/{topic_id}", s.Delete)
	})

	return r
}

type TopicInfo struct {
	TopicId uuid.UUID `json:"topic_id"`
	Name    string    `json:"name"`
}

func (s *TopicService) List(w http.ResponseWriter, r *http.Request) {
	var topics []schema.Topic
	result := s.db.Order("name ASC").Find(&topics)
	if result.Error != nil {
		slog.Error("sql error listing topics", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing topics: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]TopicInfo, 0, len(topics))
	for _, topic := range topics {
		infos = append(infos, TopicInfo{TopicId: topic.Id, Name: topic.Name})
	}
	utils.WriteJsonResponse(w, infos)
}

type createTopicRequest struct {
	Name string `json:"name"`
}

func (s *TopicService) Create(w http.ResponseWriter, r *http.Request) {
	var params createTopicRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	name := strings.TrimSpace(params.Name)
	if name == "" {
		http.Error(w, "topic name must not be empty", http.StatusUnprocessableEntity)
		return
	}

	topic := schema.Topic{Id: uuid.New(), Name: name}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		var existing schema.Topic
		result := txn.Limit(1).Find(&existing, "name = ?", name)
		if result.Error != nil {
			slog.Error("sql error checking for existing topic", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("topic '%v' already exists", name), http.StatusConflict)
		}

		result = txn.Create(&topic)
		if result.Error != nil {
			slog.Error("sql error creating topic", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating topic: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, TopicInfo{TopicId: topic.Id, Name: topic.Name})
}

func (s *TopicService) Delete(w http.ResponseWriter, r *http.Request) {
	topicId, err := utils.URLParamUUID(r, "topic_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		_, err := schema.GetTopic(topicId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrTopicNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		var count int64
		result := txn.Model(&schema.Template{}).Where("topic_id = ?", topicId).Count(&count)
		if result.Error != nil {
			slog.Error("sql error counting templates for topic", "topic_id", topicId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if count > 0 {
			return CodedError(fmt.Errorf("cannot delete topic %v since %d templates still use it", topicId, count), http.StatusUnprocessableEntity)
		}

		result = txn.Delete(&schema.Topic{Id: topicId})
		if result.Error != nil {
			slog.Error("sql error deleting topic", "topic_id", topicId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting topic: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
