package tests

import (
	"math"
	"testing"

	"form_platform/platform/questions"
	"form_platform/platform/schema"
	"form_platform/platform/services"

	"github.com/google/uuid"
)

func TestResultsAggregation(t *testing.T) {
	env := setupTestEnv(t)
	topicId := env.createTopic(t, "surveys")

	owner, err := env.newUser("agg_owner")
	if err != nil {
		t.Fatal(err)
	}

	req := basicTemplateRequest(topicId)
	req.Questions = []questions.Question{
		{Kind: questions.ShortText, Title: "Name", Required: true, ShowInResults: true},
		{Kind: questions.Scale, Title: "Rating", Min: intPtr(1), Max: intPtr(5), Required: true, ShowInResults: true},
		{Kind: questions.ShortText, Title: "Secret", ShowInResults: false},
	}
	created, err := owner.createTemplate(req)
	if err != nil {
		t.Fatal(err)
	}

	nameQ := created.Questions[0].Id
	ratingQ := created.Questions[1].Id
	secretQ := created.Questions[2].Id

	for _, rating := range []string{"2", "3", "4"} {
		if _, err := owner.submitForm(created.TemplateId, services.SubmitRequest{
			Answers: map[uuid.UUID]string{nameQ: "Judy", ratingQ: rating, secretQ: "hidden"},
		}); err != nil {
			t.Fatal(err)
		}
	}

	results, err := owner.getResults(created.TemplateId)
	if err != nil {
		t.Fatal(err)
	}

	if results.SubmissionCount != 3 {
		t.Fatalf("expected 3 submissions, got %d", results.SubmissionCount)
	}

	// Hidden questions are excluded from listings and aggregates.
	if len(results.Aggregates) != 2 {
		t.Fatalf("expected 2 aggregates, got %+v", results.Aggregates)
	}
	for _, submission := range results.Submissions {
		if _, ok := submission.Answers[secretQ]; ok {
			t.Fatalf("hidden answer leaked into results: %+v", submission)
		}
	}

	byQuestion := map[uuid.UUID]services.QuestionAggregate{}
	for _, agg := range results.Aggregates {
		byQuestion[agg.QuestionId] = agg
	}

	rating := byQuestion[ratingQ]
	if rating.AnswerCount != 3 || math.Abs(rating.Average-3.0) > 1e-9 {
		t.Fatalf("unexpected rating aggregate: %+v", rating)
	}

	// The average is blind: every answer contributes, non numeric values as
	// zero.
	name := byQuestion[nameQ]
	if name.AnswerCount != 3 || name.Average != 0 {
		t.Fatalf("unexpected name aggregate: %+v", name)
	}
}

func TestHistoricalAnswersSurviveQuestionReplacement(t *testing.T) {
	env := setupTestEnv(t)
	topicId := env.createTopic(t, "surveys")

	owner, err := env.newUser("hist_owner")
	if err != nil {
		t.Fatal(err)
	}

	created, err := owner.createTemplate(basicTemplateRequest(topicId))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := owner.submitForm(created.TemplateId, services.SubmitRequest{
		Answers: map[uuid.UUID]string{created.Questions[0].Id: "Mallory"},
	}); err != nil {
		t.Fatal(err)
	}

	update := basicTemplateRequest(topicId)
	update.Questions = []questions.Question{
		{Kind: questions.LongText, Title: "Feedback", ShowInResults: true},
	}
	if _, err := owner.updateTemplate(created.TemplateId, update); err != nil {
		t.Fatal(err)
	}

	// The stored answer rows are preserved, they are just no longer joined to
	// a live question.
	var answers int64
	if err := env.db.Model(&schema.FormAnswer{}).Count(&answers).Error; err != nil {
		t.Fatal(err)
	}
	if answers != 1 {
		t.Fatalf("expected historical answer to survive replacement, found %d rows", answers)
	}

	results, err := owner.getResults(created.TemplateId)
	if err != nil {
		t.Fatal(err)
	}

	if results.SubmissionCount != 1 {
		t.Fatalf("expected 1 submission, got %d", results.SubmissionCount)
	}
	if len(results.Submissions[0].Answers) != 0 {
		t.Fatalf("expected orphaned answers to be omitted from results, got %+v", results.Submissions[0].Answers)
	}
	if len(results.Aggregates) != 1 || results.Aggregates[0].Title != "Feedback" || results.Aggregates[0].AnswerCount != 0 {
		t.Fatalf("unexpected aggregates after replacement: %+v", results.Aggregates)
	}
}
