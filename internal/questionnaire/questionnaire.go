// Package questionnaire holds the questionnaire document model and the
// linear voice session that walks a respondent through it.
package questionnaire

import (
	"encoding/json"
	"fmt"
	"os"
)

// Question types understood by the answer parser.
const (
	TypeScale            = "scale"
	TypeBooleanCustomMap = "boolean_custom_map"
)

// Question is one item of a questionnaire document.
type Question struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Type        string `json:"type"`
	MinValue    *int   `json:"min_value,omitempty"`
	MaxValue    *int   `json:"max_value,omitempty"`
	OptionsText string `json:"options_text,omitempty"`

	// Spoken-word mappings for boolean_custom_map questions.
	TrueValueSpoken   []string `json:"true_value_spoken,omitempty"`
	TrueValueNumeric  any      `json:"true_value_numeric,omitempty"`
	FalseValueSpoken  []string `json:"false_value_spoken,omitempty"`
	FalseValueNumeric any      `json:"false_value_numeric,omitempty"`
}

// SpokenText is the full prompt read to the respondent: the question text
// followed by the response instructions when present.
func (q Question) SpokenText() string {
	if q.OptionsText == "" {
		return q.Text
	}
	return q.Text + " " + q.OptionsText
}

// Questionnaire is a loaded questionnaire document.
type Questionnaire struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
}

// Validate rejects documents a session cannot run.
func (q Questionnaire) Validate() error {
	if q.Title == "" {
		return fmt.Errorf("questionnaire has no title")
	}
	if len(q.Questions) == 0 {
		return fmt.Errorf("questionnaire %q has no questions", q.Title)
	}
	seen := make(map[string]bool, len(q.Questions))
	for i, question := range q.Questions {
		if question.ID == "" {
			return fmt.Errorf("question %d has no id", i+1)
		}
		if seen[question.ID] {
			return fmt.Errorf("duplicate question id %q", question.ID)
		}
		seen[question.ID] = true
		if question.Text == "" {
			return fmt.Errorf("question %q has no text", question.ID)
		}
	}
	return nil
}

// Answer is a respondent's reply to one question. ParsedValue carries the
// extracted scale number or mapped boolean value.
type Answer struct {
	QuestionID          string `json:"question_id"`
	QuestionText        string `json:"question_text"`
	TranscribedResponse string `json:"transcribed_response"`
	ParsedValue         any    `json:"parsed_value"`
	IsConfirmed         bool   `json:"is_confirmed"`
}

// LoadFile reads and validates a questionnaire document from a JSON file.
func LoadFile(path string) (Questionnaire, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Questionnaire{}, fmt.Errorf("read questionnaire: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a questionnaire document.
func Parse(data []byte) (Questionnaire, error) {
	var q Questionnaire
	if err := json.Unmarshal(data, &q); err != nil {
		return Questionnaire{}, fmt.Errorf("decode questionnaire: %w", err)
	}
	if err := q.Validate(); err != nil {
		return Questionnaire{}, err
	}
	return q, nil
}
