package tests

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"form_platform/platform/auth"
	"form_platform/platform/mail"
	"form_platform/platform/schema"
	"form_platform/platform/services"
	"form_platform/platform/storage"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	platform services.FormPlatform
	api      chi.Router
	db       *gorm.DB
	storage  storage.Storage

	mailer      *recorderMailer
	broadcaster *recorderBroadcaster
}

const (
	adminUsername = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"
)

// recorderMailer captures outgoing messages so tests can assert on them.
type recorderMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *recorderMailer) Send(msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recorderMailer) messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message{}, m.sent...)
}

type broadcastEvent struct {
	TemplateId uuid.UUID
	Payload    interface{}
}

type recorderBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (b *recorderBroadcaster) Publish(templateId uuid.UUID, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{TemplateId: templateId, Payload: payload})
}

func (b *recorderBroadcaster) published() []broadcastEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcastEvent{}, b.events...)
}

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:?_fk=1"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatal(err)
	}

	err = db.AutoMigrate(schema.AllModels()...)
	if err != nil {
		t.Fatal(err)
	}

	storagePath := filepath.Join(t.TempDir(), "storage")
	err = os.MkdirAll(storagePath, 0777)
	if err != nil {
		t.Fatalf("error creating storage directory: %v", err)
	}
	store := storage.NewSharedDisk(storagePath)

	secret := []byte("290zcv02ai249")

	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:        secret,
			AdminUsername: adminUsername,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	mailer := &recorderMailer{}
	broadcaster := &recorderBroadcaster{}

	platform := services.NewFormPlatform(db, store, mailer, broadcaster, userAuth)

	return &testEnv{
		platform:    platform,
		api:         platform.Routes(),
		db:          db,
		storage:     store,
		mailer:      mailer,
		broadcaster: broadcaster,
	}
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) newUser(username string) (client, error) {
	c := t.newClient()
	login, err := c.signup(username, username+"@mail.com", username+"_password")
	if err != nil {
		return client{}, err
	}

	err = c.login(login)
	if err != nil {
		return client{}, err
	}

	return c, nil
}

func (t *testEnv) adminClient() (client, error) {
	c := t.newClient()
	err := c.login(loginInfo{Email: adminEmail, Password: adminPassword})
	return c, err
}

func (t *testEnv) createTopic(topicTest *testing.T, name string) uuid.UUID {
	admin, err := t.adminClient()
	if err != nil {
		topicTest.Fatal(err)
	}

	var res services.TopicInfo
	err = admin.Post("/topic/create").Json(map[string]string{"name": name}).Do(&res)
	if err != nil {
		topicTest.Fatal(err)
	}

	return res.TopicId
}
