package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"form_platform/platform/auth"
	"form_platform/platform/realtime"
	"form_platform/platform/schema"
	"form_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CommentService struct {
	db *gorm.DB

	userAuth    auth.IdentityProvider
	broadcaster realtime.Broadcaster
}

func (s *CommentService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Route("/{template_id}", func(r chi.Router) {
			r.Post("/", s.Create)
			r.Get("/list", s.List)
		})
	})

	return r
}

type createCommentRequest struct {
	Text string `json:"text"`
}

type CommentInfo struct {
	CommentId uuid.UUID `json:"comment_id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *CommentService) Create(w http.ResponseWriter, r *http.Request) {
	templateId, err := utils.URLParamUUID(r, "template_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params createCommentRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if strings.TrimSpace(params.Text) == "" {
		http.Error(w, "comment text must not be empty", http.StatusUnprocessableEntity)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	comment := schema.Comment{
		Id:         uuid.New(),
		TemplateId: templateId,
		UserId:     user.Id,
		Text:       params.Text,
		CreatedAt:  time.Now().UTC(),
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		template, err := loadTemplateForAccess(txn, templateId, false)
		if err != nil {
			return err
		}

		if !auth.CanRead(user, &template) {
			return CodedError(fmt.Errorf("user %v does not have access to template %v", user.Id, templateId), http.StatusForbidden)
		}

		result := txn.Create(&comment)
		if result.Error != nil {
			slog.Error("sql error creating comment", "template_id", templateId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating comment: %v", err), GetResponseCode(err))
		return
	}

	info := CommentInfo{
		CommentId: comment.Id,
		Username:  user.Username,
		Text:      comment.Text,
		CreatedAt: comment.CreatedAt,
	}

	// Viewers with the template open get the new comment pushed over their
	// websocket. Delivery is best effort.
	s.broadcaster.Publish(templateId, info)

	utils.WriteJsonResponse(w, info)
}

func (s *CommentService) List(w http.ResponseWriter, r *http.Request) {
	templateId, err := utils.URLParamUUID(r, "template_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	template, err := schema.GetTemplate(templateId, s.db, false, false, false)
	if err != nil {
		if errors.Is(err, schema.ErrTemplateNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if !auth.CanRead(user, &template) {
		http.Error(w, fmt.Sprintf("user %v does not have access to template %v", user.Id, templateId), http.StatusForbidden)
		return
	}

	var comments []schema.Comment
	result := s.db.Preload("User").
		Where("template_id = ?", templateId).
		Order("created_at ASC").
		Find(&comments)
	if result.Error != nil {
		slog.Error("sql error listing comments", "template_id", templateId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing comments: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]CommentInfo, 0, len(comments))
	for _, comment := range comments {
		var username string
		if comment.User != nil {
			username = comment.User.Username
		}
		infos = append(infos, CommentInfo{
			CommentId: comment.Id,
			Username:  username,
			Text:      comment.Text,
			CreatedAt: comment.CreatedAt,
		})
	}

	utils.WriteJsonResponse(w, infos)
}
