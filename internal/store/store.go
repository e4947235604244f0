// Package store persists questionnaires and confirmed answers in SQLite and
// exports results as CSV.
package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/voxform-ai/voxform/internal/config"
	"github.com/voxform-ai/voxform/internal/questionnaire"
)

// ErrNotFound is reported when a questionnaire id has no row.
var ErrNotFound = errors.New("questionnaire not found")

// QuestionnaireInfo is a stored questionnaire's listing entry.
type QuestionnaireInfo struct {
	ID            string
	Title         string
	Description   string
	QuestionCount int
	CreatedAt     time.Time
}

// Store wraps the SQLite database holding questionnaires and answers.
type Store struct {
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS questionnaires (
    questionnaire_id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS questions (
    questionnaire_id TEXT NOT NULL,
    question_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    payload BLOB NOT NULL,
    PRIMARY KEY(questionnaire_id, question_id),
    FOREIGN KEY(questionnaire_id) REFERENCES questionnaires(questionnaire_id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS answers (
    questionnaire_id TEXT NOT NULL,
    question_id TEXT NOT NULL,
    question_text TEXT,
    transcribed_response TEXT,
    parsed_value TEXT,
    is_confirmed INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY(questionnaire_id, question_id),
    FOREIGN KEY(questionnaire_id) REFERENCES questionnaires(questionnaire_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_questions_position ON questions(questionnaire_id, position);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveQuestionnaire persists a questionnaire document and returns its id.
func (s *Store) SaveQuestionnaire(ctx context.Context, doc questionnaire.Questionnaire) (string, error) {
	if err := doc.Validate(); err != nil {
		return "", err
	}
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO questionnaires(questionnaire_id, title, description, created_at) VALUES(?, ?, ?, ?)`,
		id, doc.Title, doc.Description, s.clock().UTC().Format(time.RFC3339Nano)); err != nil {
		return "", fmt.Errorf("insert questionnaire: %w", err)
	}
	for i, q := range doc.Questions {
		payload, err := json.Marshal(q)
		if err != nil {
			return "", fmt.Errorf("marshal question %s: %w", q.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO questions(questionnaire_id, question_id, position, payload) VALUES(?, ?, ?, ?)`,
			id, q.ID, i, payload); err != nil {
			return "", fmt.Errorf("insert question %s: %w", q.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}

	s.log.Info("questionnaire saved",
		slog.String("questionnaire_id", id),
		slog.String("title", doc.Title),
		slog.Int("questions", len(doc.Questions)))
	return id, nil
}

// LoadQuestionnaire rebuilds a stored questionnaire document.
func (s *Store) LoadQuestionnaire(ctx context.Context, id string) (questionnaire.Questionnaire, error) {
	var doc questionnaire.Questionnaire
	err := s.db.QueryRowContext(ctx,
		`SELECT title, description FROM questionnaires WHERE questionnaire_id = ?`, id).
		Scan(&doc.Title, &doc.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return questionnaire.Questionnaire{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return questionnaire.Questionnaire{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM questions WHERE questionnaire_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return questionnaire.Questionnaire{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return questionnaire.Questionnaire{}, err
		}
		var q questionnaire.Question
		if err := json.Unmarshal(payload, &q); err != nil {
			return questionnaire.Questionnaire{}, fmt.Errorf("decode question payload: %w", err)
		}
		doc.Questions = append(doc.Questions, q)
	}
	return doc, rows.Err()
}

// ListQuestionnaires returns stored questionnaires, newest first.
func (s *Store) ListQuestionnaires(ctx context.Context) ([]QuestionnaireInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT q.questionnaire_id, q.title, q.description, q.created_at, COUNT(qs.question_id)
FROM questionnaires q LEFT JOIN questions qs ON qs.questionnaire_id = q.questionnaire_id
GROUP BY q.questionnaire_id ORDER BY q.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []QuestionnaireInfo
	for rows.Next() {
		var info QuestionnaireInfo
		var created string
		if err := rows.Scan(&info.ID, &info.Title, &info.Description, &created, &info.QuestionCount); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			info.CreatedAt = ts
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// RecordAnswer upserts a confirmed answer. Re-confirming a question replaces
// the earlier row.
func (s *Store) RecordAnswer(ctx context.Context, questionnaireID string, answer questionnaire.Answer) error {
	value, err := json.Marshal(answer.ParsedValue)
	if err != nil {
		return fmt.Errorf("marshal parsed value: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO answers(questionnaire_id, question_id, question_text, transcribed_response, parsed_value, is_confirmed, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(questionnaire_id, question_id) DO UPDATE SET
    question_text=excluded.question_text,
    transcribed_response=excluded.transcribed_response,
    parsed_value=excluded.parsed_value,
    is_confirmed=excluded.is_confirmed,
    created_at=excluded.created_at`,
		questionnaireID, answer.QuestionID, answer.QuestionText, answer.TranscribedResponse,
		string(value), boolToInt(answer.IsConfirmed), s.clock().UTC().Format(time.RFC3339Nano))
	return err
}

// ExportCSV writes the confirmed answers of a questionnaire as CSV.
func (s *Store) ExportCSV(ctx context.Context, questionnaireID string) (string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT question_id, question_text, transcribed_response, parsed_value, is_confirmed
FROM answers WHERE questionnaire_id = ? AND is_confirmed = 1 ORDER BY question_id ASC`,
		questionnaireID)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var out strings.Builder
	writer := csv.NewWriter(&out)
	if err := writer.Write([]string{"question_id", "question_text", "transcribed_response", "parsed_value", "is_confirmed"}); err != nil {
		return "", err
	}
	for rows.Next() {
		var questionID, questionText, transcription, parsedValue string
		var confirmed int
		if err := rows.Scan(&questionID, &questionText, &transcription, &parsedValue, &confirmed); err != nil {
			return "", err
		}
		if err := writer.Write([]string{
			questionID, questionText, transcription,
			renderValue(parsedValue), fmt.Sprintf("%t", confirmed != 0),
		}); err != nil {
			return "", err
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	writer.Flush()
	return out.String(), writer.Error()
}

// renderValue turns the JSON-encoded parsed value back into plain text.
func renderValue(encoded string) string {
	var value any
	if err := json.Unmarshal([]byte(encoded), &value); err != nil {
		return encoded
	}
	if value == nil {
		return ""
	}
	if f, ok := value.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(value)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
