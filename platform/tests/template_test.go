package tests

import (
	"net/http"
	"testing"

	"form_platform/platform/questions"
	"form_platform/platform/schema"
	"form_platform/platform/services"

	"github.com/google/uuid"
)

func intPtr(n int) *int {
	return &n
}

func basicQuestions() []questions.Question {
	return []questions.Question{
		{Kind: questions.ShortText, Title: "Name", Required: true, ShowInResults: true},
		{Kind: questions.Scale, Title: "Rating", Min: intPtr(1), Max: intPtr(5), ShowInResults: true},
		{Kind: questions.Dropdown, Title: "Choice", Options: []string{"A", "B", "C"}, ShowInResults: true},
	}
}

func basicTemplateRequest(topicId uuid.UUID) services.TemplateRequest {
	return services.TemplateRequest{
		Title:       "Customer Survey",
		Description: "How did we do",
		TopicId:     topicId,
		IsPublic:    true,
		Questions:   basicQuestions(),
		Tags:        []string{"feedback", "customers"},
	}
}

func TestCreateAndGetTemplate(t *testing.T) {
	env := setupTestEnv(t)
	topicId := env.createTopic(t, "surveys")

	user, err := env.newUser("owner1")
	if err != nil {
		t.Fatal(err)
	}

	created, err := user.createTemplate(basicTemplateRequest(topicId))
	if err != nil {
		t.Fatal(err)
	}

	if created.Version != 1 {
		t.Fatalf("expected new template to have version 1, got %d", created.Version)
	}

	info, err := user.getTemplate(created.TemplateId)
	if err != nil {
		t.Fatal(err)
	}

	if info.Title != "Customer Survey" || info.TopicName != "surveys" || info.OwnerName != "owner1" {
		t.Fatalf("unexpected template info: %+v", info)
	}

	if len(info.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(info.Questions))
	}
	if info.Questions[0].Title != "Name" || info.Questions[1].Title != "Rating" || info.Questions[2].Title != "Choice" {
		t.Fatalf("questions returned out of order: %+v", info.Questions)
	}

	if len(info.Tags) != 2 {
		t.Fatalf("expected 2 tags, got %v", info.Tags)
	}
}

func TestCreateTemplateChecks(t *testing.T) {
	env := setupTestEnv(t)
	topicId := env.createTopic(t, "surveys")

	user, err := env.newUser("owner2")
	if err != nil {
		t.Fatal(err)
	}

	t.Run("MissingTopic", func(t *testing.T) {
		req := basicTemplateRequest(uuid.New())
		_, err := user.createTemplate(req)
		if status := statusOf(err); status != http.StatusNotFound {
			t.Fatalf("expected status 404, got error %v", err)
		}
	})

	t.Run("EmptyTitle", func(t *testing.T) {
		req := basicTemplateRequest(topicId)
		req.Title = "  "
		_, err := user.createTemplate(req)
		if status := statusOf(err); status != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got error %v", err)
		}
	})

	t.Run("InvalidQuestion", func(t *testing.T) {
		req := basicTemplateRequest(topicId)
		req.Questions = append(req.Questions, questions.Question{Kind: questions.Select, Title: "Bad", Options: []string{"only one"}})
		_, err := user.createTemplate(req)
		if status := statusOf(err); status != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got error %v", err)
		}
	})

	t.Run("InvalidPermissionUserIds", func(t *testing.T) {
		req := basicTemplateRequest(topicId)
		req.IsPublic = false
		req.Permissions = []uuid.UUID{uuid.New()}
		_, err := user.createTemplate(req)
		if status := statusOf(err); status != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got error %v", err)
		}
	})

	t.Run("FailedCreateLeavesNothingBehind", func(t *testing.T) {
		var count int64
		if err := env.db.Model(&schema.Template{}).Count(&count).Error; err != nil {
			t.Fatal(err)
		}
		if count != 0 {
			t.Fatalf("expected no templates after failed creates, found %d", count)
		}
	})
}

func TestUpdateTemplateReplacesQuestions(t *testing.T) {
	env := setupTestEnv(t)
	topicId := env.createTopic(t, "surveys")

	user, err := env.newUser("owner3")
	if err != nil {
		t.Fatal(err)
	}

	created, err := user.createTemplate(basicTemplateRequest(topicId))
	if err != nil {
		t.Fatal(err)
	}

	update := basicTemplateRequest(topicId)
	update.Title = "Updated Survey"
	update.Questions = []questions.Question{
		{Kind: questions.LongText, Title: "Comments", ShowInResults: true},
	}
	update.Tags = []string{"feedback"}

	updated, err := user.updateTemplate(created.TemplateId, update)
	if err != nil {
		t.Fatal(err)
	}

	if updated.Version != 2 {
		t.Fatalf("expected version 2 after update, got %d", updated.Version)
	}
	if updated.Title != "Updated Survey" {
		t.Fatalf("expected updated title, got '%v'", updated.Title)
	}
	if len(updated.Questions) != 1 || updated.Questions[0].Title != "Comments" {
		t.Fatalf("expected questions to be replaced, got %+v", updated.Questions)
	}
	if len(updated.Tags) != 1 || updated.Tags[0] != "feedback" {
		t.Fatalf("expected tags to be replaced, got %v", updated.Tags)
	}

	// Old question rows must be gone, not orphaned.
	var count int64
	if err := env.db.Model(&schema.TemplateQuestion{}).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 question row after replacement, found %d", count)
	}

	t.Run("ShrinkToEmpty", func(t *testing.T) {
		update.Questions = nil
		updated, err := user.updateTemplate(created.TemplateId, update)
		if err != nil {
			t.Fatal(err)
		}
		if len(updated.Questions) != 0 {
			t.Fatalf("expected no questions, got %+v", updated.Questions)
		}
	})

	t.Run("FailedUpdateIsAtomic", func(t *testing.T) {
		before, err := user.getTemplate(created.TemplateId)
		if err != nil {
			t.Fatal(err)
		}

		bad := basicTemplateRequest(topicId)
		bad.Questions = []questions.Question{{Kind: "bogus", Title: "X"}}
		_, err = user.updateTemplate(created.TemplateId, bad)
		if status := statusOf(err); status != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got error %v", err)
		}

		after, err := user.getTemplate(created.TemplateId)
		if err != nil {
			t.Fatal(err)
		}
		if after.Version != before.Version || after.Title != before.Title {
			t.Fatalf("failed update modified the template: before %+v after %+v", before, after)
		}
	})
}

func TestDeleteTemplate(t *testing.T) {
	env := setupTestEnv(t)
	topicId := env.createTopic(t, "surveys")

	user, err := env.newUser("owner4")
	if err != nil {
		t.Fatal(err)
	}

	created, err := user.createTemplate(basicTemplateRequest(topicId))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := user.submitForm(created.TemplateId, services.SubmitRequest{
		Answers: map[uuid.UUID]string{created.Questions[0].Id: "Alice"},
	}); err != nil {
		t.Fatal(err)
	}

	other, err := env.newUser("other4")
	if err != nil {
		t.Fatal(err)
	}
	if err := other.deleteTemplate(created.TemplateId); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected status 403 for non-owner delete, got error %v", err)
	}

	if err := user.deleteTemplate(created.TemplateId); err != nil {
		t.Fatal(err)
	}

	if _, err := user.getTemplate(created.TemplateId); statusOf(err) != http.StatusNotFound {
		t.Fatalf("expected status 404 after delete, got error %v", err)
	}

	for _, model := range []interface{}{&schema.TemplateQuestion{}, &schema.Form{}, &schema.FormAnswer{}} {
		var count int64
		if err := env.db.Model(model).Count(&count).Error; err != nil {
			t.Fatal(err)
		}
		if count != 0 {
			t.Fatalf("expected no %T rows after template delete, found %d", model, count)
		}
	}
}

func TestListAndTopTemplates(t *testing.T) {
	env := setupTestEnv(t)
	topicId := env.createTopic(t, "surveys")

	u1, err := env.newUser("lister1")
	if err != nil {
		t.Fatal(err)
	}
	u2, err := env.newUser("lister2")
	if err != nil {
		t.Fatal(err)
	}

	public := basicTemplateRequest(topicId)
	popular, err := u1.createTemplate(public)
	if err != nil {
		t.Fatal(err)
	}

	public.Title = "Quiet Survey"
	if _, err := u1.createTemplate(public); err != nil {
		t.Fatal(err)
	}

	private := basicTemplateRequest(topicId)
	private.Title = "Private Survey"
	private.IsPublic = false
	if _, err := u2.createTemplate(private); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := u2.submitForm(popular.TemplateId, services.SubmitRequest{
			Answers: map[uuid.UUID]string{popular.Questions[0].Id: "Bob"},
		}); err != nil {
			t.Fatal(err)
		}
	}

	publicList, err := u2.listTemplates("public")
	if err != nil {
		t.Fatal(err)
	}
	if len(publicList) != 2 {
		t.Fatalf("expected 2 public templates, got %d", len(publicList))
	}

	mine, err := u2.listTemplates("mine")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].Title != "Private Survey" {
		t.Fatalf("unexpected 'mine' listing: %+v", mine)
	}

	var top []services.TopTemplateInfo
	anon := env.newClient()
	if err := anon.Get("/template/top?limit=1").Do(&top); err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].TemplateId != popular.TemplateId || top[0].SubmissionCount != 3 {
		t.Fatalf("unexpected top listing: %+v", top)
	}
}

func TestLikeTemplate(t *testing.T) {
	env := setupTestEnv(t)
	topicId := env.createTopic(t, "surveys")

	owner, err := env.newUser("liker_owner")
	if err != nil {
		t.Fatal(err)
	}
	fan, err := env.newUser("fan")
	if err != nil {
		t.Fatal(err)
	}

	created, err := owner.createTemplate(basicTemplateRequest(topicId))
	if err != nil {
		t.Fatal(err)
	}

	likeUrl := "/template/" + created.TemplateId.String() + "/like"

	if err := fan.Post(likeUrl).Do(nil); err != nil {
		t.Fatal(err)
	}
	// Liking twice is a no-op, not an error.
	if err := fan.Post(likeUrl).Do(nil); err != nil {
		t.Fatal(err)
	}

	info, err := owner.getTemplate(created.TemplateId)
	if err != nil {
		t.Fatal(err)
	}
	if info.LikeCount != 1 {
		t.Fatalf("expected 1 like, got %d", info.LikeCount)
	}

	if err := fan.Delete(likeUrl).Do(nil); err != nil {
		t.Fatal(err)
	}

	info, err = owner.getTemplate(created.TemplateId)
	if err != nil {
		t.Fatal(err)
	}
	if info.LikeCount != 0 {
		t.Fatalf("expected 0 likes after unlike, got %d", info.LikeCount)
	}
}
