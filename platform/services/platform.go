package services

import (
	"log"
	"net/http"
	"os"

	"form_platform/platform/auth"
	"form_platform/platform/mail"
	"form_platform/platform/realtime"
	"form_platform/platform/storage"
	"form_platform/platform/telemetry"
	"form_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

type FormPlatform struct {
	user     UserService
	template TemplateService
	form     FormService
	topic    TopicService
	comment  CommentService
	upload   UploadService

	db          *gorm.DB
	broadcaster realtime.Broadcaster
	metrics     *telemetry.Metrics
}

func NewFormPlatform(
	db *gorm.DB, store storage.Storage, mailer mail.Mailer, broadcaster realtime.Broadcaster, userAuth auth.IdentityProvider,
) FormPlatform {
	return FormPlatform{
		user:        UserService{db: db, userAuth: userAuth},
		template:    TemplateService{db: db, userAuth: userAuth},
		form:        FormService{db: db, userAuth: userAuth, mailer: mailer},
		topic:       TopicService{db: db, userAuth: userAuth},
		comment:     CommentService{db: db, userAuth: userAuth, broadcaster: broadcaster},
		upload:      UploadService{storage: store, userAuth: userAuth},
		db:          db,
		broadcaster: broadcaster,
		metrics:     telemetry.New(),
	}
}

func (p *FormPlatform) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))
	r.Use(p.metrics.Middleware)

	r.Mount("/user", p.user.Routes())
	r.Mount("/template", p.template.Routes())
	r.Mount("/form", p.form.Routes())
	r.Mount("/topic", p.topic.Routes())
	r.Mount("/comment", p.comment.Routes())
	r.Mount("/upload", p.upload.Routes())

	// The websocket route only exists when the broadcaster is the in-process
	// hub. Test environments substitute a stub broadcaster.
	if hub, ok := p.broadcaster.(*realtime.Hub); ok {
		r.Get("/template/{template_id}/ws", hub.Handler())
	}

	r.Handle("/metrics", p.metrics.Handler())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}
