package tests

import (
	"net/http"
	"strings"
	"testing"

	"form_platform/platform/questions"
	"form_platform/platform/schema"
	"form_platform/platform/services"

	"github.com/google/uuid"
)

func TestSubmitFormToPrivateTemplate(t *testing.T) {
	env := setupTestEnv(t)
	topicId := env.createTopic(t, "surveys")

	owner, err := env.newUser("submit_owner")
	if err != nil {
		t.Fatal(err)
	}
	permitted, err := env.newUser("submit_permitted")
	if err != nil {
		t.Fatal(err)
	}
	outsider, err := env.newUser("submit_outsider")
	if err != nil {
		t.Fatal(err)
	}

	req := basicTemplateRequest(topicId)
	req.IsPublic = false
	req.Permissions = []uuid.UUID{permitted.userId}

	created, err := owner.createTemplate(req)
	if err != nil {
		t.Fatal(err)
	}

	formId, err := permitted.submitForm(created.TemplateId, services.SubmitRequest{
		Answers: map[uuid.UUID]string{
			created.Questions[0].Id: "Dana",
			created.Questions[1].Id: "4",
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	var forms int64
	if err := env.db.Model(&schema.Form{}).Count(&forms).Error; err != nil {
		t.Fatal(err)
	}
	if forms != 1 {
		t.Fatalf("expected 1 form, found %d", forms)
	}

	var answers int64
	if err := env.db.Model(&schema.FormAnswer{}).Where("form_id = ?", formId).Count(&answers).Error; err != nil {
		t.Fatal(err)
	}
	if answers != 2 {
		t.Fatalf("expected 2 answers, found %d", answers)
	}

	_, err = outsider.submitForm(created.TemplateId, services.SubmitRequest{
		Answers: map[uuid.UUID]string{created.Questions[0].Id: "Eve"},
	})
	if statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected status 403 for outsider submission, got error %v", err)
	}
}

func TestSubmitFormValidation(t *testing.T) {
	env := setupTestEnv(t)
	topicId := env.createTopic(t, "surveys")

	owner, err := env.newUser("validate_owner")
	if err != nil {
		t.Fatal(err)
	}

	created, err := owner.createTemplate(basicTemplateRequest(topicId))
	if err != nil {
		t.Fatal(err)
	}

	nameQ := created.Questions[0].Id
	ratingQ := created.Questions[1].Id
	choiceQ := created.Questions[2].Id

	submit := func(answers map[uuid.UUID]string) error {
		_, err := owner.submitForm(created.TemplateId, services.SubmitRequest{Answers: answers})
		return err
	}

	t.Run("RequiredMissing", func(t *testing.T) {
		err := submit(map[uuid.UUID]string{ratingQ: "3"})
		if statusOf(err) != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got error %v", err)
		}
	})

	t.Run("ScaleBounds", func(t *testing.T) {
		if err := submit(map[uuid.UUID]string{nameQ: "Frank", ratingQ: "1"}); err != nil {
			t.Fatal(err)
		}
		if err := submit(map[uuid.UUID]string{nameQ: "Frank", ratingQ: "5"}); err != nil {
			t.Fatal(err)
		}
		err := submit(map[uuid.UUID]string{nameQ: "Frank", ratingQ: "0"})
		if statusOf(err) != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422 for rating below range, got error %v", err)
		}
		err = submit(map[uuid.UUID]string{nameQ: "Frank", ratingQ: "6"})
		if statusOf(err) != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422 for rating above range, got error %v", err)
		}
	})

	t.Run("DropdownOptions", func(t *testing.T) {
		if err := submit(map[uuid.UUID]string{nameQ: "Grace", choiceQ: "A"}); err != nil {
			t.Fatal(err)
		}
		err := submit(map[uuid.UUID]string{nameQ: "Grace", choiceQ: "D"})
		if statusOf(err) != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422 for unknown option, got error %v", err)
		}
	})

	t.Run("UnknownQuestionId", func(t *testing.T) {
		err := submit(map[uuid.UUID]string{nameQ: "Heidi", uuid.New(): "stray"})
		if statusOf(err) != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422 for unknown question id, got error %v", err)
		}
	})

	t.Run("FailedSubmitIsAtomic", func(t *testing.T) {
		var answers int64
		if err := env.db.Model(&schema.FormAnswer{}).Count(&answers).Error; err != nil {
			t.Fatal(err)
		}
		var forms int64
		if err := env.db.Model(&schema.Form{}).Count(&forms).Error; err != nil {
			t.Fatal(err)
		}
		// Only the successful submissions above should have left rows.
		if forms != 3 {
			t.Fatalf("expected 3 forms from successful submissions, found %d", forms)
		}
		if answers != 6 {
			t.Fatalf("expected 6 answers from successful submissions, found %d", answers)
		}
	})
}

func TestSubmitFormEmailCopy(t *testing.T) {
	env := setupTestEnv(t)
	topicId := env.createTopic(t, "surveys")

	owner, err := env.newUser("copy_owner")
	if err != nil {
		t.Fatal(err)
	}

	created, err := owner.createTemplate(basicTemplateRequest(topicId))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := owner.submitForm(created.TemplateId, services.SubmitRequest{
		Answers: map[uuid.UUID]string{
			created.Questions[0].Id: "Ivan",
			created.Questions[1].Id: "5",
		},
		SendCopy: true,
	}); err != nil {
		t.Fatal(err)
	}

	sent := env.mailer.messages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sent))
	}
	if sent[0].To != "copy_owner@mail.com" {
		t.Fatalf("email sent to wrong address: %v", sent[0].To)
	}
	if !strings.Contains(sent[0].Body, "Name: Ivan") || !strings.Contains(sent[0].Body, "Rating: 5") {
		t.Fatalf("email body missing answers: %v", sent[0].Body)
	}
}

func TestCheckboxAnswersCanonicalized(t *testing.T) {
	env := setupTestEnv(t)
	topicId := env.createTopic(t, "surveys")

	owner, err := env.newUser("check_owner")
	if err != nil {
		t.Fatal(err)
	}

	req := basicTemplateRequest(topicId)
	req.Questions = []questions.Question{
		{Kind: questions.Checkbox, Title: "Agree", ShowInResults: true},
	}
	created, err := owner.createTemplate(req)
	if err != nil {
		t.Fatal(err)
	}

	agreeQ := created.Questions[0].Id

	for _, raw := range []string{"on", "1", "true"} {
		if _, err := owner.submitForm(created.TemplateId, services.SubmitRequest{
			Answers: map[uuid.UUID]string{agreeQ: raw},
		}); err != nil {
			t.Fatal(err)
		}
	}
	// Anything else, including an absent answer, stores false.
	if _, err := owner.submitForm(created.TemplateId, services.SubmitRequest{
		Answers: map[uuid.UUID]string{agreeQ: "maybe"},
	}); err != nil {
		t.Fatal(err)
	}

	var trues int64
	if err := env.db.Model(&schema.FormAnswer{}).Where("value = ?", "true").Count(&trues).Error; err != nil {
		t.Fatal(err)
	}
	var falses int64
	if err := env.db.Model(&schema.FormAnswer{}).Where("value = ?", "false").Count(&falses).Error; err != nil {
		t.Fatal(err)
	}
	if trues != 3 || falses != 1 {
		t.Fatalf("expected 3 true and 1 false answers, got %d and %d", trues, falses)
	}
}
