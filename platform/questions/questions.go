// Package questions defines the closed set of question kinds a template may
// use, along with each kind's construction invariants and the validation and
// canonical formatting rules for submitted answers.
package questions

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"form_platform/platform/schema"

	"github.com/google/uuid"
)

const (
	ShortText   = "short_text"
	LongText    = "long_text"
	Integer     = "integer"
	Checkbox    = "checkbox"
	Select      = "select"
	MultiSelect = "multi_select"
	Dropdown    = "dropdown"
	Scale       = "scale"
	Date        = "date"
	Time        = "time"
)

var allKinds = []string{
	ShortText, LongText, Integer, Checkbox, Select,
	MultiSelect, Dropdown, Scale, Date, Time,
}

func CheckValidKind(kind string) error {
	if !slices.Contains(allKinds, kind) {
		return fmt.Errorf("invalid question kind '%v'", kind)
	}
	return nil
}

// HasOptions reports whether the kind carries an options list. MultiSelect is
// stored and validated as a single value from its options list, same as
// Select and Dropdown.
func HasOptions(kind string) bool {
	return kind == Select || kind == MultiSelect || kind == Dropdown
}

func IsScale(kind string) bool {
	return kind == Scale
}

// Question is the tagged variant form of a template question: the kind
// discriminates which payload fields are meaningful. Options is only set for
// selection kinds, Min/Max and the endpoint labels only for scale.
type Question struct {
	Id uuid.UUID `json:"id,omitempty"`

	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Required      bool `json:"required"`
	ShowInResults bool `json:"show_in_results"`

	AttachmentUrl string `json:"attachment_url,omitempty"`

	Options []string `json:"options,omitempty"`

	Min      *int   `json:"min,omitempty"`
	Max      *int   `json:"max,omitempty"`
	MinLabel string `json:"min_label,omitempty"`
	MaxLabel string `json:"max_label,omitempty"`
}

// Validate checks the construction invariants for the question's kind: the
// kind specific payload must be present and well formed for its kind, and
// absent otherwise.
func (q *Question) Validate() error {
	if err := CheckValidKind(q.Kind); err != nil {
		return err
	}

	if strings.TrimSpace(q.Title) == "" {
		return fmt.Errorf("question title must not be empty")
	}

	if HasOptions(q.Kind) {
		if len(q.Options) < 2 {
			return fmt.Errorf("question kind '%v' requires at least 2 options", q.Kind)
		}
		for _, opt := range q.Options {
			if strings.TrimSpace(opt) == "" {
				return fmt.Errorf("question kind '%v' must not have empty options", q.Kind)
			}
		}
	} else if len(q.Options) != 0 {
		return fmt.Errorf("question kind '%v' must not have options", q.Kind)
	}

	if IsScale(q.Kind) {
		if q.Min == nil || q.Max == nil {
			return fmt.Errorf("question kind '%v' requires min and max bounds", q.Kind)
		}
		if *q.Min >= *q.Max {
			return fmt.Errorf("question kind '%v' requires min < max, got min=%d max=%d", q.Kind, *q.Min, *q.Max)
		}
	} else if q.Min != nil || q.Max != nil || q.MinLabel != "" || q.MaxLabel != "" {
		return fmt.Errorf("question kind '%v' must not have scale bounds or labels", q.Kind)
	}

	return nil
}

// ValidateAnswer type checks a submitted answer against the question and
// returns the canonical textual encoding that is persisted and later rendered
// back. The question must have passed Validate.
func (q *Question) ValidateAnswer(value string) (string, error) {
	value = strings.TrimSpace(value)

	if q.Kind == Checkbox {
		// A checkbox never fails required-ness, any value maps to a boolean.
		if value == "true" || value == "on" || value == "1" {
			return "true", nil
		}
		return "false", nil
	}

	if value == "" {
		if q.Required {
			return "", fmt.Errorf("question '%v' requires an answer", q.Title)
		}
		return "", nil
	}

	switch q.Kind {
	case ShortText, LongText, Date, Time:
		// Date and time answers are deliberately accepted as opaque strings.
		return value, nil

	case Integer:
		n, err := strconv.Atoi(value)
		if err != nil {
			return "", fmt.Errorf("answer for question '%v' must be an integer, got '%v'", q.Title, value)
		}
		return strconv.Itoa(n), nil

	case Select, MultiSelect, Dropdown:
		if !slices.Contains(q.Options, value) {
			return "", fmt.Errorf("answer '%v' for question '%v' is not one of the available options", value, q.Title)
		}
		return value, nil

	case Scale:
		n, err := strconv.Atoi(value)
		if err != nil {
			return "", fmt.Errorf("answer for question '%v' must be an integer, got '%v'", q.Title, value)
		}
		if n < *q.Min || n > *q.Max {
			return "", fmt.Errorf("answer %d for question '%v' is outside the range [%d, %d]", n, q.Title, *q.Min, *q.Max)
		}
		return strconv.Itoa(n), nil

	default:
		return "", fmt.Errorf("invalid question kind '%v'", q.Kind)
	}
}

// Row converts the question to its storage form, serializing the options list
// and assigning the given display order.
func (q *Question) Row(templateId uuid.UUID, order int) (schema.TemplateQuestion, error) {
	row := schema.TemplateQuestion{
		Id:            uuid.New(),
		TemplateId:    templateId,
		Kind:          q.Kind,
		Title:         q.Title,
		Description:   q.Description,
		DisplayOrder:  order,
		Required:      q.Required,
		ShowInResults: q.ShowInResults,
		AttachmentUrl: q.AttachmentUrl,
		Min:           q.Min,
		Max:           q.Max,
		MinLabel:      q.MinLabel,
		MaxLabel:      q.MaxLabel,
	}

	if HasOptions(q.Kind) {
		opts, err := json.Marshal(q.Options)
		if err != nil {
			return schema.TemplateQuestion{}, fmt.Errorf("error serializing options for question '%v': %w", q.Title, err)
		}
		row.Options = string(opts)
	}

	return row, nil
}

// FromRow restores the tagged variant from its storage form.
func FromRow(row schema.TemplateQuestion) (Question, error) {
	q := Question{
		Id:            row.Id,
		Kind:          row.Kind,
		Title:         row.Title,
		Description:   row.Description,
		Required:      row.Required,
		ShowInResults: row.ShowInResults,
		AttachmentUrl: row.AttachmentUrl,
		Min:           row.Min,
		Max:           row.Max,
		MinLabel:      row.MinLabel,
		MaxLabel:      row.MaxLabel,
	}

	if row.Options != "" {
		if err := json.Unmarshal([]byte(row.Options), &q.Options); err != nil {
			return Question{}, fmt.Errorf("error parsing options for question %v: %w", row.Id, err)
		}
	}

	return q, nil
}
