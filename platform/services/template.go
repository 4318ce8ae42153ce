package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"form_platform/platform/auth"
	"form_platform/platform/questions"
	"form_platform/platform/schema"
	"form_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TemplateService struct {
	db *gorm.DB

	userAuth auth.IdentityProvider
}

func (s *TemplateService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Post("/create", s.Create)
		r.Get("/list", s.List)
		r.Get("/search", s.Search)

		r.Route("/{template_id}", func(r chi.Router) {
			r.Get("/", s.Get)
			r.Post("/update", s.Update)
			r.Delete("/", s.Delete)

			r.Post("/like", s.Like)
			r.Delete("/like", s.Unlike)
		})
	})

	// The top listing only exposes public templates, no auth required.
	r.Get("/top", s.Top)

	return r
}

// TemplateRequest is the complete desired state of a template. Create and
// update both take it whole: questions, tags and permissions always replace
// whatever was stored before.
type TemplateRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	TopicId     uuid.UUID `json:"topic_id"`
	IsPublic    bool      `json:"is_public"`
	ImageUrl    string    `json:"image_url"`

	Questions []questions.Question `json:"questions"`

	Tags []string `json:"tags"`

	// User ids granted read/fill access, only meaningful for private
	// templates.
	Permissions []uuid.UUID `json:"permissions"`
}

func (req *TemplateRequest) validate() error {
	if strings.TrimSpace(req.Title) == "" {
		return CodedError(errors.New("template title must not be empty"), http.StatusUnprocessableEntity)
	}

	for i, question := range req.Questions {
		if err := question.Validate(); err != nil {
			return CodedError(fmt.Errorf("invalid question at index %d: %w", i, err), http.StatusUnprocessableEntity)
		}
	}

	return nil
}

func (s *TemplateService) Create(w http.ResponseWriter, r *http.Request) {
	var params TemplateRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := params.validate(); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	templateId := uuid.New()

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkTopicExists(txn, params.TopicId); err != nil {
			return err
		}

		template := schema.Template{
			Id:          templateId,
			Title:       params.Title,
			Description: params.Description,
			SearchText:  schema.SearchText(params.Title, params.Description),
			IsPublic:    params.IsPublic,
			Version:     1,
			ImageUrl:    params.ImageUrl,
			CreatedAt:   time.Now().UTC(),
			TopicId:     params.TopicId,
			UserId:      user.Id,
		}

		result := txn.Create(&template)
		if result.Error != nil {
			slog.Error("sql error creating template", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return s.saveTemplateChildren(txn, &template, &params)
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating template: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("created template", "template_id", templateId, "user_id", user.Id)

	s.writeTemplateInfo(w, templateId, user)
}

func (s *TemplateService) Update(w http.ResponseWriter, r *http.Request) {
	templateId, err := utils.URLParamUUID(r, "template_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params TemplateRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := params.validate(); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		template, err := loadTemplateForAccess(txn, templateId, false)
		if err != nil {
			return err
		}

		if !auth.CanWrite(user, &template) {
			return CodedError(fmt.Errorf("user %v cannot modify template %v", user.Id, templateId), http.StatusForbidden)
		}

		if err := checkTopicExists(txn, params.TopicId); err != nil {
			return err
		}

		updates := map[string]interface{}{
			"title":       params.Title,
			"description": params.Description,
			"search_text": schema.SearchText(params.Title, params.Description),
			"is_public":   params.IsPublic,
			"image_url":   params.ImageUrl,
			"topic_id":    params.TopicId,
			"version":     gorm.Expr("version + 1"),
		}
		result := txn.Model(&schema.Template{Id: templateId}).Updates(updates)
		if result.Error != nil {
			slog.Error("sql error updating template", "template_id", templateId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		// Questions and permissions are replaced wholesale: clients always
		// submit the complete desired state, so reordering, kind changes and
		// deletions all reduce to delete-all-then-insert.
		if err := s.deleteTemplateChildren(txn, templateId); err != nil {
			return err
		}

		return s.saveTemplateChildren(txn, &schema.Template{Id: templateId}, &params)
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating template: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("updated template", "template_id", templateId, "user_id", user.Id)

	s.writeTemplateInfo(w, templateId, user)
}

func (s *TemplateService) deleteTemplateChildren(txn *gorm.DB, templateId uuid.UUID) error {
	result := txn.Where("template_id = ?", templateId).Delete(&schema.TemplateQuestion{})
	if result.Error != nil {
		slog.Error("sql error deleting template questions", "template_id", templateId, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	result = txn.Where("template_id = ?", templateId).Delete(&schema.TemplatePermission{})
	if result.Error != nil {
		slog.Error("sql error deleting template permissions", "template_id", templateId, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	return nil
}

func (s *TemplateService) saveTemplateChildren(txn *gorm.DB, template *schema.Template, params *TemplateRequest) error {
	if len(params.Questions) > 0 {
		rows := make([]schema.TemplateQuestion, 0, len(params.Questions))
		for i, question := range params.Questions {
			// Display order is the array index; any client submitted order is
			// not trusted.
			row, err := question.Row(template.Id, i)
			if err != nil {
				return CodedError(err, http.StatusUnprocessableEntity)
			}
			rows = append(rows, row)
		}

		result := txn.Create(&rows)
		if result.Error != nil {
			slog.Error("sql error creating template questions", "template_id", template.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
	}

	tags, err := resolveTags(txn, params.Tags)
	if err != nil {
		return err
	}
	if err := txn.Model(template).Association("Tags").Replace(tags); err != nil {
		slog.Error("sql error replacing template tags", "template_id", template.Id, "error", err)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	if !params.IsPublic && len(params.Permissions) > 0 {
		if err := s.savePermissions(txn, template.Id, params.Permissions); err != nil {
			return err
		}
	}

	return nil
}

func (s *TemplateService) savePermissions(txn *gorm.DB, templateId uuid.UUID, userIds []uuid.UUID) error {
	unique := make(map[uuid.UUID]bool, len(userIds))
	rows := make([]schema.TemplatePermission, 0, len(userIds))
	for _, userId := range userIds {
		if unique[userId] {
			continue
		}
		unique[userId] = true
		rows = append(rows, schema.TemplatePermission{TemplateId: templateId, UserId: userId})
	}

	ids := make([]uuid.UUID, 0, len(unique))
	for id := range unique {
		ids = append(ids, id)
	}

	var count int64
	result := txn.Model(&schema.User{}).Where("id IN ?", ids).Count(&count)
	if result.Error != nil {
		slog.Error("sql error validating permission user ids", "template_id", templateId, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	if count != int64(len(ids)) {
		return CodedError(errors.New("invalid user IDs in permission list"), http.StatusUnprocessableEntity)
	}

	result = txn.Create(&rows)
	if result.Error != nil {
		slog.Error("sql error creating template permissions", "template_id", templateId, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	return nil
}

func (s *TemplateService) Delete(w http.ResponseWriter, r *http.Request) {
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

	err = s.db.Transaction(func(txn *gorm.DB) error {
		template, err := loadTemplateForAccess(txn, templateId, false)
		if err != nil {
			return err
		}

		if !auth.CanWrite(user, &template) {
			return CodedError(fmt.Errorf("user %v cannot delete template %v", user.Id, templateId), http.StatusForbidden)
		}

		// Children are deleted explicitly rather than relying on the cascade
		// constraints, historical answers included.
		formIds := txn.Model(&schema.Form{}).Select("id").Where("template_id = ?", templateId)
		if result := txn.Where("form_id IN (?)", formIds).Delete(&schema.FormAnswer{}); result.Error != nil {
			slog.Error("sql error deleting form answers", "template_id", templateId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		for _, model := range []interface{}{&schema.Form{}, &schema.Comment{}, &schema.Like{}} {
			if result := txn.Where("template_id = ?", templateId).Delete(model); result.Error != nil {
				slog.Error("sql error deleting template children", "template_id", templateId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		if err := s.deleteTemplateChildren(txn, templateId); err != nil {
			return err
		}

		if err := txn.Model(&template).Association("Tags").Clear(); err != nil {
			slog.Error("sql error clearing template tags", "template_id", templateId, "error", err)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result := txn.Delete(&schema.Template{Id: templateId})
		if result.Error != nil {
			slog.Error("sql error deleting template", "template_id", templateId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting template: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("deleted template", "template_id", templateId, "user_id", user.Id)

	utils.WriteSuccess(w)
}

type TemplateInfo struct {
	TemplateId  uuid.UUID `json:"template_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`

	TopicId   uuid.UUID `json:"topic_id"`
	TopicName string    `json:"topic_name"`

	IsPublic bool   `json:"is_public"`
	Version  int    `json:"version"`
	ImageUrl string `json:"image_url,omitempty"`

	OwnerId   uuid.UUID `json:"owner_id"`
	OwnerName string    `json:"owner_name"`

	CreatedAt time.Time `json:"created_at"`

	Questions []questions.Question `json:"questions"`
	Tags      []string             `json:"tags"`

	// Only included for callers with write access.
	Permissions []uuid.UUID `json:"permissions,omitempty"`

	LikeCount int64 `json:"like_count"`
}

func convertToTemplateInfo(template *schema.Template, user schema.User, db *gorm.DB) (TemplateInfo, error) {
	qs := make([]questions.Question, 0, len(template.Questions))
	for _, row := range template.Questions {
		question, err := questions.FromRow(row)
		if err != nil {
			slog.Error("error decoding stored question", "question_id", row.Id, "error", err)
			return TemplateInfo{}, CodedError(errors.New("error decoding stored question"), http.StatusInternalServerError)
		}
		qs = append(qs, question)
	}

	tags := make([]string, 0, len(template.Tags))
	for _, tag := range template.Tags {
		tags = append(tags, tag.Name)
	}

	var likes int64
	result := db.Model(&schema.Like{}).Where("template_id = ?", template.Id).Count(&likes)
	if result.Error != nil {
		slog.Error("sql error counting template likes", "template_id", template.Id, "error", result.Error)
		return TemplateInfo{}, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	var ownerName string
	if template.User != nil {
		ownerName = template.User.Username
	}
	var topicName string
	if template.Topic != nil {
		topicName = template.Topic.Name
	}

	info := TemplateInfo{
		TemplateId:  template.Id,
		Title:       template.Title,
		Description: template.Description,
		TopicId:     template.TopicId,
		TopicName:   topicName,
		IsPublic:    template.IsPublic,
		Version:     template.Version,
		ImageUrl:    template.ImageUrl,
		OwnerId:     template.UserId,
		OwnerName:   ownerName,
		CreatedAt:   template.CreatedAt,
		Questions:   qs,
		Tags:        tags,
		LikeCount:   likes,
	}

	if auth.CanWrite(user, template) {
		info.Permissions = template.PermittedUserIds()
	}

	return info, nil
}

func (s *TemplateService) writeTemplateInfo(w http.ResponseWriter, templateId uuid.UUID, user schema.User) {
	template, err := schema.GetTemplate(templateId, s.db, true, true, true)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading template: %v", err), http.StatusInternalServerError)
		return
	}

	info, err := convertToTemplateInfo(&template, user, s.db)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, info)
}

func (s *TemplateService) Get(w http.ResponseWriter, r *http.Request) {
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

	template, err := schema.GetTemplate(templateId, s.db, true, true, true)
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

	info, err := convertToTemplateInfo(&template, user, s.db)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, info)
}

func (s *TemplateService) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	filter := r.URL.Query().Get("filter")

	query := s.db.Preload("Permissions").Preload("Questions").Preload("Tags").Preload("User").Preload("Topic")
	switch filter {
	case "", "public":
		query = query.Where("is_public = ?", true)
	case "mine":
		query = query.Where("user_id = ?", user.Id)
	default:
		http.Error(w, fmt.Sprintf("invalid filter '%v', must be 'public' or 'mine'", filter), http.StatusUnprocessableEntity)
		return
	}

	var templates []schema.Template
	result := query.Order("created_at DESC").Find(&templates)
	if result.Error != nil {
		slog.Error("sql error listing templates", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing templates: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	s.writeTemplateInfos(w, templates, user)
}

func (s *TemplateService) writeTemplateInfos(w http.ResponseWriter, templates []schema.Template, user schema.User) {
	infos := make([]TemplateInfo, 0, len(templates))
	for _, template := range templates {
		info, err := convertToTemplateInfo(&template, user, s.db)
		if err != nil {
			http.Error(w, err.Error(), GetResponseCode(err))
			return
		}
		infos = append(infos, info)
	}

	utils.WriteJsonResponse(w, infos)
}

// Search matches the query against the precomputed search text, restricted to
// templates the caller is allowed to read in the same query.
func (s *TemplateService) Search(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		http.Error(w, "missing 'q' query parameter", http.StatusBadRequest)
		return
	}

	query := s.db.Preload("Permissions").Preload("Questions").Preload("Tags").Preload("User").Preload("Topic").
		Where("search_text LIKE ?", "%"+strings.ToLower(q)+"%")

	if !user.IsAdmin {
		permitted := s.db.Model(&schema.TemplatePermission{}).Select("template_id").Where("user_id = ?", user.Id)
		query = query.Where(
			s.db.Where("is_public = ?", true).
				Or("user_id = ?", user.Id).
				Or("id IN (?)", permitted),
		)
	}

	var templates []schema.Template
	result := query.Order("created_at DESC").Find(&templates)
	if result.Error != nil {
		slog.Error("sql error searching templates", "query", q, "error", result.Error)
		http.Error(w, fmt.Sprintf("error searching templates: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	s.writeTemplateInfos(w, templates, user)
}

type TopTemplateInfo struct {
	TemplateId      uuid.UUID `json:"template_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	OwnerName       string    `json:"owner_name"`
	SubmissionCount int64     `json:"submission_count"`
}

func (s *TemplateService) Top(w http.ResponseWriter, r *http.Request) {
	limit := 5
	if param := r.URL.Query().Get("limit"); param != "" {
		n, err := strconv.Atoi(param)
		if err != nil || n <= 0 {
			http.Error(w, "expected 'limit' parameter to be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	var templates []schema.Template
	result := s.db.Preload("User").
		Select("templates.*, count(forms.id) AS submission_count").
		Joins("LEFT JOIN forms ON forms.template_id = templates.id").
		Where("templates.is_public = ?", true).
		Group("templates.id").
		Order("submission_count DESC").
		Limit(limit).
		Find(&templates)
	if result.Error != nil {
		slog.Error("sql error listing top templates", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing top templates: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]TopTemplateInfo, 0, len(templates))
	for _, template := range templates {
		var count int64
		res := s.db.Model(&schema.Form{}).Where("template_id = ?", template.Id).Count(&count)
		if res.Error != nil {
			slog.Error("sql error counting template submissions", "template_id", template.Id, "error", res.Error)
			http.Error(w, fmt.Sprintf("error listing top templates: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
			return
		}

		var ownerName string
		if template.User != nil {
			ownerName = template.User.Username
		}

		infos = append(infos, TopTemplateInfo{
			TemplateId:      template.Id,
			Title:           template.Title,
			Description:     template.Description,
			OwnerName:       ownerName,
			SubmissionCount: count,
		})
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *TemplateService) Like(w http.ResponseWriter, r *http.Request) {
	s.setLike(w, r, true)
}

func (s *TemplateService) Unlike(w http.ResponseWriter, r *http.Request) {
	s.setLike(w, r, false)
}

func (s *TemplateService) setLike(w http.ResponseWriter, r *http.Request, liked bool) {
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

	err = s.db.Transaction(func(txn *gorm.DB) error {
		template, err := loadTemplateForAccess(txn, templateId, false)
		if err != nil {
			return err
		}

		if !auth.CanRead(user, &template) {
			return CodedError(fmt.Errorf("user %v does not have access to template %v", user.Id, templateId), http.StatusForbidden)
		}

		if liked {
			like := schema.Like{TemplateId: templateId, UserId: user.Id}
			result := txn.Where(&like).FirstOrCreate(&like)
			if result.Error != nil {
				slog.Error("sql error creating like", "template_id", templateId, "user_id", user.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		} else {
			result := txn.Delete(&schema.Like{TemplateId: templateId, UserId: user.Id})
			if result.Error != nil {
				slog.Error("sql error deleting like", "template_id", templateId, "user_id", user.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating like: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
