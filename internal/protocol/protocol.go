// Package protocol defines the bus message shapes and subjects shared by the
// platform services.
package protocol

import "time"

// QuestionnaireExtracted announces that a questionnaire definition was
// produced from an uploaded document and persisted.
type QuestionnaireExtracted struct {
	QuestionnaireID string    `json:"questionnaire_id"`
	Title           string    `json:"title"`
	QuestionCount   int       `json:"question_count"`
	Languages       []string  `json:"languages"`
	Timestamp       time.Time `json:"timestamp"`
}

// SynthesisRequested asks the presynthesis service to render one question.
type SynthesisRequested struct {
	QuestionnaireID string `json:"questionnaire_id"`
	QuestionID      string `json:"question_id"`
	Text            string `json:"text"`
	Language        string `json:"language"`
}

// AudioReady announces a finished question recording in the audio cache.
type AudioReady struct {
	QuestionnaireID string    `json:"questionnaire_id"`
	QuestionID      string    `json:"question_id"`
	Language        string    `json:"language"`
	Path            string    `json:"path"`
	Timestamp       time.Time `json:"timestamp"`
}

const (
	SubjectQuestionnaireExtracted = "voxform.questionnaire.extracted"
	SubjectSynthesisRequested     = "voxform.synthesis.requested"
	SubjectAudioReady             = "voxform.audio.ready"
)
