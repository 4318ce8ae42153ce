package tests

import (
	"net/http"
	"testing"

	"form_platform/platform/services"

	"github.com/google/uuid"
)

func TestComments(t *testing.T) {
	env := setupTestEnv(t)
	topicId := env.createTopic(t, "surveys")

	owner, err := env.newUser("comment_owner")
	if err != nil {
		t.Fatal(err)
	}
	reader, err := env.newUser("comment_reader")
	if err != nil {
		t.Fatal(err)
	}
	outsider, err := env.newUser("comment_outsider")
	if err != nil {
		t.Fatal(err)
	}

	req := basicTemplateRequest(topicId)
	req.IsPublic = false
	req.Permissions = []uuid.UUID{reader.userId}

	created, err := owner.createTemplate(req)
	if err != nil {
		t.Fatal(err)
	}

	commentUrl := "/comment/" + created.TemplateId.String()

	var posted services.CommentInfo
	if err := reader.Post(commentUrl).Json(map[string]string{"text": "great survey"}).Do(&posted); err != nil {
		t.Fatal(err)
	}
	if posted.Username != "comment_reader" {
		t.Fatalf("unexpected comment info: %+v", posted)
	}

	err = outsider.Post(commentUrl).Json(map[string]string{"text": "sneaky"}).Do(nil)
	if statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected status 403 for outsider comment, got error %v", err)
	}

	err = reader.Post(commentUrl).Json(map[string]string{"text": "   "}).Do(nil)
	if statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for empty comment, got error %v", err)
	}

	var comments []services.CommentInfo
	if err := owner.Get(commentUrl + "/list").Do(&comments); err != nil {
		t.Fatal(err)
	}
	if len(comments) != 1 || comments[0].Text != "great survey" {
		t.Fatalf("unexpected comment listing: %+v", comments)
	}

	// Each accepted comment is pushed to subscribers of the template.
	events := env.broadcaster.published()
	if len(events) != 1 || events[0].TemplateId != created.TemplateId {
		t.Fatalf("unexpected broadcast events: %+v", events)
	}
}
