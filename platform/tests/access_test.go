package tests

import (
	"net/http"
	"testing"

	"form_platform/platform/services"

	"github.com/google/uuid"
)

func TestPrivateTemplateAccess(t *testing.T) {
	env := setupTestEnv(t)
	topicId := env.createTopic(t, "surveys")

	owner, err := env.newUser("priv_owner")
	if err != nil {
		t.Fatal(err)
	}
	permitted, err := env.newUser("priv_permitted")
	if err != nil {
		t.Fatal(err)
	}
	outsider, err := env.newUser("priv_outsider")
	if err != nil {
		t.Fatal(err)
	}
	admin, err := env.adminClient()
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

	readers := map[string]*client{"owner": &owner, "permitted": &permitted, "admin": &admin}
	for name, c := range readers {
		if _, err := c.getTemplate(created.TemplateId); err != nil {
			t.Fatalf("expected %v to read private template, got error %v", name, err)
		}
	}

	// An existing but forbidden template is reported as forbidden, not
	// missing.
	if _, err := outsider.getTemplate(created.TemplateId); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected status 403 for outsider, got error %v", err)
	}

	// Only the owner and admins may modify, the permission list grants read
	// and fill access only.
	update := req
	update.Title = "Renamed"
	if _, err := permitted.updateTemplate(created.TemplateId, update); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected status 403 for permitted user update, got error %v", err)
	}
	if _, err := admin.updateTemplate(created.TemplateId, update); err != nil {
		t.Fatalf("expected admin to update template, got error %v", err)
	}
}

func TestPermissionListReplacedOnUpdate(t *testing.T) {
	env := setupTestEnv(t)
	topicId := env.createTopic(t, "surveys")

	owner, err := env.newUser("perm_owner")
	if err != nil {
		t.Fatal(err)
	}
	u1, err := env.newUser("perm_u1")
	if err != nil {
		t.Fatal(err)
	}
	u2, err := env.newUser("perm_u2")
	if err != nil {
		t.Fatal(err)
	}

	req := basicTemplateRequest(topicId)
	req.IsPublic = false
	req.Permissions = []uuid.UUID{u1.userId}

	created, err := owner.createTemplate(req)
	if err != nil {
		t.Fatal(err)
	}

	req.Permissions = []uuid.UUID{u2.userId}
	if _, err := owner.updateTemplate(created.TemplateId, req); err != nil {
		t.Fatal(err)
	}

	if _, err := u1.getTemplate(created.TemplateId); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected u1 to lose access after permission replacement, got error %v", err)
	}
	if _, err := u2.getTemplate(created.TemplateId); err != nil {
		t.Fatalf("expected u2 to gain access after permission replacement, got error %v", err)
	}
}

func TestSearchRespectsAccess(t *testing.T) {
	env := setupTestEnv(t)
	topicId := env.createTopic(t, "surveys")

	owner, err := env.newUser("search_owner")
	if err != nil {
		t.Fatal(err)
	}
	permitted, err := env.newUser("search_permitted")
	if err != nil {
		t.Fatal(err)
	}
	outsider, err := env.newUser("search_outsider")
	if err != nil {
		t.Fatal(err)
	}
	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	public := basicTemplateRequest(topicId)
	public.Title = "Galaxy Poll Public"
	if _, err := owner.createTemplate(public); err != nil {
		t.Fatal(err)
	}

	private := basicTemplateRequest(topicId)
	private.Title = "Galaxy Poll Private"
	private.IsPublic = false
	private.Permissions = []uuid.UUID{permitted.userId}
	if _, err := owner.createTemplate(private); err != nil {
		t.Fatal(err)
	}

	searchers := map[string]*client{"owner": &owner, "permitted": &permitted, "admin": &admin, "outsider": &outsider}
	expected := map[string]int{"owner": 2, "permitted": 2, "admin": 2, "outsider": 1}

	for name, c := range searchers {
		// The query is matched case insensitively against title and
		// description.
		results, err := c.searchTemplates("galaxy")
		if err != nil {
			t.Fatalf("search failed for %v: %v", name, err)
		}
		if len(results) != expected[name] {
			t.Fatalf("expected %d search results for %v, got %d", expected[name], name, len(results))
		}
	}

	none, err := owner.searchTemplates("nebula")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no results for unmatched query, got %d", len(none))
	}
}

func TestResultsAccess(t *testing.T) {
	env := setupTestEnv(t)
	topicId := env.createTopic(t, "surveys")

	owner, err := env.newUser("results_owner")
	if err != nil {
		t.Fatal(err)
	}
	permitted, err := env.newUser("results_permitted")
	if err != nil {
		t.Fatal(err)
	}
	admin, err := env.adminClient()
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

	if _, err := permitted.submitForm(created.TemplateId, services.SubmitRequest{
		Answers: map[uuid.UUID]string{created.Questions[0].Id: "Carol"},
	}); err != nil {
		t.Fatal(err)
	}

	// Submitting grants no access to the aggregate results.
	if _, err := permitted.getResults(created.TemplateId); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected status 403 for permitted user results, got error %v", err)
	}

	if _, err := owner.getResults(created.TemplateId); err != nil {
		t.Fatal(err)
	}
	if _, err := admin.getResults(created.TemplateId); err != nil {
		t.Fatal(err)
	}
}
