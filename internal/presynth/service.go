// Package presynth renders every question of a freshly extracted
// questionnaire ahead of time, so sessions replay cached audio instead of
// synthesizing on the critical path.
package presynth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/voxform-ai/voxform/internal/bus"
	"github.com/voxform-ai/voxform/internal/config"
	"github.com/voxform-ai/voxform/internal/protocol"
	"github.com/voxform-ai/voxform/internal/questionnaire"
)

// QuestionnaireLoader provides the questions to render.
type QuestionnaireLoader interface {
	LoadQuestionnaire(ctx context.Context, id string) (questionnaire.Questionnaire, error)
}

type Service struct {
	cfg        config.PresynthConfig
	audioDir   string
	bus        *bus.Client
	loader     QuestionnaireLoader
	logger     *slog.Logger
	httpClient *http.Client
	sub        *nats.Subscription
	reqSub     *nats.Subscription
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewService(parent context.Context, cfg config.PresynthConfig, audioDir string, busClient *bus.Client, loader QuestionnaireLoader, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:        cfg,
		audioDir:   audioDir,
		bus:        busClient,
		loader:     loader,
		logger:     logger.With(slog.String("component", "presynth")),
		httpClient: &http.Client{Timeout: 150 * time.Second},
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	if err := os.MkdirAll(s.audioDir, 0o755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectQuestionnaireExtracted, s.handleExtracted)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", protocol.SubjectQuestionnaireExtracted, err)
	}
	s.sub = sub
	reqSub, err := s.bus.Conn().Subscribe(protocol.SubjectSynthesisRequested, s.handleSynthesisRequested)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", protocol.SubjectSynthesisRequested, err)
	}
	s.reqSub = reqSub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	if s.reqSub != nil {
		_ = s.reqSub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || (s.sub != nil && s.reqSub != nil)
}

func (s *Service) handleExtracted(msg *nats.Msg) {
	var event protocol.QuestionnaireExtracted
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		s.logger.Warn("failed to decode extracted event", slogError(err))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.renderQuestionnaire(event.QuestionnaireID)
	}()
}

// handleSynthesisRequested renders a single question on demand, typically a
// cache miss reported when a stored questionnaire is loaded into a session.
func (s *Service) handleSynthesisRequested(msg *nats.Msg) {
	var event protocol.SynthesisRequested
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		s.logger.Warn("failed to decode synthesis request", slogError(err))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		path, err := s.renderRequested(event)
		if err != nil {
			s.logger.Warn("requested render failed",
				slog.String("questionnaire_id", event.QuestionnaireID),
				slog.String("question_id", event.QuestionID),
				slogError(err))
			return
		}
		s.publishAudioReady(protocol.AudioReady{
			QuestionnaireID: event.QuestionnaireID,
			QuestionID:      event.QuestionID,
			Language:        event.Language,
			Path:            path,
			Timestamp:       time.Now().UTC(),
		})
	}()
}

// renderRequested synthesizes the request's text directly; the event carries
// everything needed, no questionnaire load required.
func (s *Service) renderRequested(event protocol.SynthesisRequested) (string, error) {
	language := event.Language
	if language == "" {
		language = s.cfg.Language
	}
	audio, err := s.synthesize(event.Text, language)
	if err != nil {
		return "", err
	}

	path := CachePath(s.audioDir, event.QuestionnaireID, event.QuestionID)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", fmt.Errorf("write cached audio: %w", err)
	}
	return path, nil
}

// renderQuestionnaire synthesizes every question in sequence. One failed
// question does not abort the rest; sessions fall back to on-demand
// synthesis for anything missing from the cache.
func (s *Service) renderQuestionnaire(questionnaireID string) {
	doc, err := s.loader.LoadQuestionnaire(s.ctx, questionnaireID)
	if err != nil {
		s.logger.Error("cannot load questionnaire for rendering",
			slog.String("questionnaire_id", questionnaireID), slogError(err))
		return
	}

	rendered := 0
	for _, question := range doc.Questions {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		path, err := s.renderQuestion(questionnaireID, question)
		if err != nil {
			s.logger.Warn("question render failed",
				slog.String("questionnaire_id", questionnaireID),
				slog.String("question_id", question.ID),
				slogError(err))
			continue
		}
		rendered++
		s.publishAudioReady(protocol.AudioReady{
			QuestionnaireID: questionnaireID,
			QuestionID:      question.ID,
			Language:        s.cfg.Language,
			Path:            path,
			Timestamp:       time.Now().UTC(),
		})
	}
	s.logger.Info("questionnaire rendered",
		slog.String("questionnaire_id", questionnaireID),
		slog.Int("rendered", rendered),
		slog.Int("total", len(doc.Questions)))
}

func (s *Service) renderQuestion(questionnaireID string, question questionnaire.Question) (string, error) {
	audio, err := s.synthesize(question.SpokenText(), s.cfg.Language)
	if err != nil {
		return "", err
	}

	path := CachePath(s.audioDir, questionnaireID, question.ID)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", fmt.Errorf("write cached audio: %w", err)
	}
	return path, nil
}

// synthesize calls the speech worker's synthesis endpoint and returns the
// WAV payload.
func (s *Service) synthesize(text, language string) ([]byte, error) {
	var body strings.Builder
	form := multipart.NewWriter(&body)
	if err := form.WriteField("text", text); err != nil {
		return nil, err
	}
	if err := form.WriteField("language", language); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	url := strings.TrimRight(s.cfg.WorkerURL, "/") + "/synthesize-speech"
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, url, strings.NewReader(body.String()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("worker request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("worker returned status %s: %s", resp.Status, detail)
	}
	return io.ReadAll(resp.Body)
}

func (s *Service) publishAudioReady(event protocol.AudioReady) {
	if err := s.bus.PublishJSON(protocol.SubjectAudioReady, event); err != nil {
		s.logger.Warn("failed to publish audio ready", slogError(err))
	}
}

// CachePath is the canonical location of a question's cached recording.
func CachePath(audioDir, questionnaireID, questionID string) string {
	return filepath.Join(audioDir, fmt.Sprintf("%s_%s.wav", questionnaireID, questionID))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
