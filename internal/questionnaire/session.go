package questionnaire

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNoQuestionnaire means no questionnaire document is loaded.
	ErrNoQuestionnaire = errors.New("no questionnaire loaded")
	// ErrNoActiveQuestion means no question has been served yet or the
	// session already completed.
	ErrNoActiveQuestion = errors.New("no active question")
)

// NextQuestion is the session's view of the upcoming question.
type NextQuestion struct {
	Question       Question
	QuestionNumber int
	TotalQuestions int
	Completed      bool
}

// Session walks one respondent linearly through a questionnaire. Answers are
// keyed by question id; re-confirming replaces the earlier answer.
type Session struct {
	mu        sync.Mutex
	doc       *Questionnaire
	answers   []Answer
	position  int
	completed bool
}

func NewSession() *Session {
	return &Session{position: -1}
}

// Load replaces the active questionnaire and resets all progress.
func (s *Session) Load(doc Questionnaire) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = &doc
	s.answers = nil
	s.position = -1
	s.completed = false
}

// Loaded reports whether a questionnaire is active.
func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc != nil
}

// Title returns the loaded questionnaire's title, or "".
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return ""
	}
	return s.doc.Title
}

// Next advances to the following question. After the last question it
// reports completion; further calls keep reporting completion.
func (s *Session) Next() (NextQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return NextQuestion{}, ErrNoQuestionnaire
	}
	if s.position+1 >= len(s.doc.Questions) {
		s.completed = true
		return NextQuestion{Completed: true, TotalQuestions: len(s.doc.Questions)}, nil
	}
	s.position++
	return NextQuestion{
		Question:       s.doc.Questions[s.position],
		QuestionNumber: s.position + 1,
		TotalQuestions: len(s.doc.Questions),
	}, nil
}

// Current returns the question most recently served by Next.
func (s *Session) Current() (Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return Question{}, ErrNoQuestionnaire
	}
	if s.completed || s.position < 0 || s.position >= len(s.doc.Questions) {
		return Question{}, ErrNoActiveQuestion
	}
	return s.doc.Questions[s.position], nil
}

// Confirm stores an answer for the active question. The answer must match
// the question currently being asked; the linear flow has no backtracking.
func (s *Session) Confirm(answer Answer) (Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return Answer{}, ErrNoQuestionnaire
	}
	if s.completed || s.position < 0 || s.position >= len(s.doc.Questions) {
		return Answer{}, ErrNoActiveQuestion
	}
	current := s.doc.Questions[s.position]
	if answer.QuestionID != current.ID {
		return Answer{}, fmt.Errorf("answer for %q does not match active question %q", answer.QuestionID, current.ID)
	}
	answer.IsConfirmed = true

	for i, existing := range s.answers {
		if existing.QuestionID == answer.QuestionID {
			s.answers[i] = answer
			return answer, nil
		}
	}
	s.answers = append(s.answers, answer)
	return answer, nil
}

// Answers returns a copy of the confirmed answers in question order.
func (s *Session) Answers() []Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Answer, len(s.answers))
	copy(out, s.answers)
	return out
}

// Reset clears the questionnaire and all recorded answers.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = nil
	s.answers = nil
	s.position = -1
	s.completed = false
}
