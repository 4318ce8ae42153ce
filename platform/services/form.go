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
	"form_platform/platform/mail"
	"form_platform/platform/questions"
	"form_platform/platform/schema"
	"form_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FormService struct {
	db *gorm.DB

	userAuth auth.IdentityProvider
	mailer   mail.Mailer
}

func (s *FormService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Route("/{template_id}", func(r chi.Router) {
			r.Post("/submit", s.Submit)
			r.Get("/results", s.Results)
		})
	})

	return r
}

type SubmitRequest struct {
	// Answers maps question id to the raw answer value. Missing entries are
	// treated the same as empty values.
	Answers map[uuid.UUID]string `json:"answers"`

	// If set, a copy of the submission is emailed to the submitting user.
	SendCopy bool `json:"send_copy"`
}

func (s *FormService) Submit(w http.ResponseWriter, r *http.Request) {
	templateId, err := utils.URLParamUUID(r, "template_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params SubmitRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	formId := uuid.New()
	var copyLines []string

	err = s.db.Transaction(func(txn *gorm.DB) error {
		template, err := loadTemplateForAccess(txn, templateId, true)
		if err != nil {
			return err
		}

		if !auth.CanRead(user, &template) {
			return CodedError(fmt.Errorf("user %v does not have access to template %v", user.Id, templateId), http.StatusForbidden)
		}

		known := make(map[uuid.UUID]bool, len(template.Questions))
		for _, row := range template.Questions {
			known[row.Id] = true
		}
		for questionId := range params.Answers {
			if !known[questionId] {
				return CodedError(fmt.Errorf("answer references unknown question %v", questionId), http.StatusUnprocessableEntity)
			}
		}

		answers := make([]schema.FormAnswer, 0, len(template.Questions))
		for _, row := range template.Questions {
			question, err := questions.FromRow(row)
			if err != nil {
				slog.Error("error decoding stored question", "question_id", row.Id, "error", err)
				return CodedError(errors.New("error decoding stored question"), http.StatusInternalServerError)
			}

			value, err := question.ValidateAnswer(params.Answers[row.Id])
			if err != nil {
				return CodedError(fmt.Errorf("invalid answer for question '%v': %w", question.Title, err), http.StatusUnprocessableEntity)
			}

			// Optional questions left blank are not stored.
			if value == "" {
				continue
			}

			answers = append(answers, schema.FormAnswer{
				FormId:     formId,
				QuestionId: row.Id,
				Value:      value,
			})
			copyLines = append(copyLines, fmt.Sprintf("%v: %v", question.Title, value))
		}

		form := schema.Form{
			Id:          formId,
			TemplateId:  templateId,
			UserId:      user.Id,
			SubmittedAt: time.Now().UTC(),
		}
		result := txn.Create(&form)
		if result.Error != nil {
			slog.Error("sql error creating form", "template_id", templateId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if len(answers) > 0 {
			result = txn.Create(&answers)
			if result.Error != nil {
				slog.Error("sql error creating form answers", "form_id", formId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error submitting form: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("submitted form", "form_id", formId, "template_id", templateId, "user_id", user.Id)

	// The submission is already committed, a mail failure only loses the
	// courtesy copy.
	if params.SendCopy {
		msg := mail.Message{
			To:      user.Email,
			Subject: "Copy of your form submission",
			Body:    strings.Join(copyLines, "\n"),
		}
		if err := s.mailer.Send(msg); err != nil {
			slog.Error("error sending submission copy", "form_id", formId, "user_id", user.Id, "error", err)
		}
	}

	utils.WriteJsonResponse(w, map[string]uuid.UUID{"form_id": formId})
}

type SubmissionInfo struct {
	FormId      uuid.UUID `json:"form_id"`
	Username    string    `json:"username"`
	SubmittedAt time.Time `json:"submitted_at"`

	Answers map[uuid.UUID]string `json:"answers"`
}

type QuestionAggregate struct {
	QuestionId uuid.UUID `json:"question_id"`
	Title      string    `json:"title"`
	Kind       string    `json:"kind"`

	AnswerCount int64 `json:"answer_count"`

	// Arithmetic mean over the stored answers, treating any value that does
	// not parse as a number as zero.
	Average float64 `json:"average"`
}

type ResultsResponse struct {
	TemplateId      uuid.UUID `json:"template_id"`
	SubmissionCount int       `json:"submission_count"`

	Submissions []SubmissionInfo    `json:"submissions"`
	Aggregates  []QuestionAggregate `json:"aggregates"`
}

func (s *FormService) Results(w http.ResponseWriter, r *http.Request) {
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

	template, err := schema.GetTemplate(templateId, s.db, true, false, false)
	if err != nil {
		if errors.Is(err, schema.ErrTemplateNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if !auth.CanViewResults(user, &template) {
		http.Error(w, fmt.Sprintf("user %v cannot view results for template %v", user.Id, templateId), http.StatusForbidden)
		return
	}

	var forms []schema.Form
	result := s.db.Preload("Answers").Preload("User").
		Where("template_id = ?", templateId).
		Order("submitted_at ASC").
		Find(&forms)
	if result.Error != nil {
		slog.Error("sql error loading forms", "template_id", templateId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error loading results: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	// Answers to questions hidden from results, and answers whose question
	// has since been replaced, are omitted from both listings and aggregates.
	visible := make(map[uuid.UUID]bool, len(template.Questions))
	for _, row := range template.Questions {
		if row.ShowInResults {
			visible[row.Id] = true
		}
	}

	sums := make(map[uuid.UUID]float64)
	counts := make(map[uuid.UUID]int64)

	submissions := make([]SubmissionInfo, 0, len(forms))
	for _, form := range forms {
		answers := make(map[uuid.UUID]string)
		for _, answer := range form.Answers {
			if !visible[answer.QuestionId] {
				continue
			}
			answers[answer.QuestionId] = answer.Value

			value, err := strconv.ParseFloat(answer.Value, 64)
			if err != nil {
				value = 0
			}
			sums[answer.QuestionId] += value
			counts[answer.QuestionId]++
		}

		var username string
		if form.User != nil {
			username = form.User.Username
		}

		submissions = append(submissions, SubmissionInfo{
			FormId:      form.Id,
			Username:    username,
			SubmittedAt: form.SubmittedAt,
			Answers:     answers,
		})
	}

	aggregates := make([]QuestionAggregate, 0, len(template.Questions))
	for _, row := range template.Questions {
		if !row.ShowInResults {
			continue
		}

		agg := QuestionAggregate{
			QuestionId:  row.Id,
			Title:       row.Title,
			Kind:        row.Kind,
			AnswerCount: counts[row.Id],
		}
		if agg.AnswerCount > 0 {
			agg.Average = sums[row.Id] / float64(agg.AnswerCount)
		}
		aggregates = append(aggregates, agg)
	}

	utils.WriteJsonResponse(w, ResultsResponse{
		TemplateId:      templateId,
		SubmissionCount: len(forms),
		Submissions:     submissions,
		Aggregates:      aggregates,
	})
}
