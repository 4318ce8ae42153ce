package schema

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Template struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Title       string `gorm:"size:255;not null"`
	Description string

	// Lowercased title+description, used by the text search endpoint.
	SearchText string `gorm:"index"`

	IsPublic bool `gorm:"not null;default:false"`
	Version  int  `gorm:"not null;default:1"`

	ImageUrl string

	CreatedAt time.Time

	TopicId uuid.UUID `gorm:"type:uuid;not null"`
	Topic   *Topic

	UserId uuid.UUID `gorm:"type:uuid;not null"`
	User   *User

	Questions   []TemplateQuestion   `gorm:"constraint:OnDelete:CASCADE"`
	Tags        []Tag                `gorm:"many2many:template_tags;constraint:OnDelete:CASCADE"`
	Permissions []TemplatePermission `gorm:"constraint:OnDelete:CASCADE"`
	Forms       []Form               `gorm:"constraint:OnDelete:CASCADE"`
	Comments    []Comment            `gorm:"constraint:OnDelete:CASCADE"`
	Likes       []Like               `gorm:"constraint:OnDelete:CASCADE"`
}

// PermittedUserIds returns the ids in the template's permission list. The
// template must have been loaded with its Permissions association.
func (t *Template) PermittedUserIds() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(t.Permissions))
	for _, perm := range t.Permissions {
		ids = append(ids, perm.UserId)
	}
	return ids
}

func SearchText(title, description string) string {
	return strings.ToLower(strings.TrimSpace(title + " " + description))
}

type TemplateQuestion struct {
	Id         uuid.UUID `gorm:"type:uuid;primaryKey"`
	TemplateId uuid.UUID `gorm:"type:uuid;not null;index"`

	Kind        string `gorm:"size:50;not null"`
	Title       string `gorm:"size:255;not null"`
	Description string

	DisplayOrder  int  `gorm:"not null"`
	Required      bool `gorm:"not null;default:false"`
	ShowInResults bool `gorm:"not null;default:true"`

	AttachmentUrl string

	// Kind specific payload: Options is a json encoded list of strings for
	// selection kinds, Min/Max bound scale kinds. These are empty/nil for
	// kinds that do not use them.
	Options  string
	Min      *int
	Max      *int
	MinLabel string
	MaxLabel string
}

type Tag struct {
	Id   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name string    `gorm:"unique;size:100;not null"`
}

type TemplatePermission struct {
	TemplateId uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId     uuid.UUID `gorm:"type:uuid;primaryKey"`

	User *User `gorm:"constraint:OnDelete:CASCADE"`
}

type Form struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	TemplateId uuid.UUID `gorm:"type:uuid;not null;index"`
	UserId     uuid.UUID `gorm:"type:uuid;not null"`
	User       *User

	SubmittedAt time.Time

	Answers []FormAnswer `gorm:"constraint:OnDelete:CASCADE"`
}

// FormAnswer pins its answer to the question row that was live when the form
/// was submitted. QuestionId is deliberately not a foreign key: replacing a
// template's questions must not repoint or delete historical answers.
type FormAnswer struct {
	FormId     uuid.UUID `gorm:"type:uuid;primaryKey"`
	QuestionId uuid.UUID `gorm:"type:uuid;primaryKey"`

	Value string
}

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username string `gorm:"unique;size:50;not null"`
	Email    string `gorm:"unique;size:254;not null"`
	Password []byte

	IsAdmin   bool `gorm:"not null;default:false"`
	IsBlocked bool `gorm:"not null;default:false"`

	// Bumped by every admin flag mutation, used for optimistic concurrency.
	Version int `gorm:"not null;default:1"`

	Templates []Template
}

type Topic struct {
	Id   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name string    `gorm:"unique;size:100;not null"`

	Templates []Template `gorm:"constraint:OnDelete:RESTRICT"`
}

type Comment struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	TemplateId uuid.UUID `gorm:"type:uuid;not null;index"`
	UserId     uuid.UUID `gorm:"type:uuid;not null"`
	User       *User

	Text string `gorm:"not null"`

	CreatedAt time.Time
}

type Like struct {
	TemplateId uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId     uuid.UUID `gorm:"type:uuid;primaryKey"`
}

func AllModels() []interface{} {
	return []interface{}{
		&Template{}, &TemplateQuestion{}, &Tag{}, &TemplatePermission{},
		&Form{}, &FormAnswer{}, &User{}, &Topic{}, &Comment{}, &Like{},
	}
}
