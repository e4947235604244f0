package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voxform-ai/voxform/internal/questionnaire"
)

// Structurer turns raw document text into a questionnaire JSON document.
type Structurer interface {
	StructureText(ctx context.Context, ocrText string) ([]byte, error)
}

// Extractor runs the two-stage pipeline: OCR the document, then reconstruct
// the questionnaire from the recognized text.
type Extractor struct {
	ocr        OCR
	structurer Structurer
	logger     *slog.Logger
}

func NewExtractor(ocr OCR, structurer Structurer, logger *slog.Logger) *Extractor {
	return &Extractor{
		ocr:        ocr,
		structurer: structurer,
		logger:     logger.With(slog.String("component", "extract")),
	}
}

// FromDocument extracts a validated questionnaire from a document file.
func (e *Extractor) FromDocument(ctx context.Context, documentPath string) (questionnaire.Questionnaire, error) {
	text, err := e.ocr.ExtractText(ctx, documentPath)
	if err != nil {
		return questionnaire.Questionnaire{}, err
	}
	if strings.TrimSpace(text) == "" {
		return questionnaire.Questionnaire{}, fmt.Errorf("document %q produced no text", documentPath)
	}

	raw, err := e.structurer.StructureText(ctx, text)
	if err != nil {
		return questionnaire.Questionnaire{}, err
	}
	doc, err := questionnaire.Parse(raw)
	if err != nil {
		return questionnaire.Questionnaire{}, fmt.Errorf("model reply is not a valid questionnaire: %w", err)
	}

	e.logger.Info("questionnaire extracted",
		slog.String("title", doc.Title),
		slog.Int("questions", len(doc.Questions)))
	return doc, nil
}
