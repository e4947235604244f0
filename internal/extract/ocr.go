// Package extract turns uploaded questionnaire documents into structured
// questionnaire definitions: OCR of the document, then a language model pass
// that reconstructs the questions and scales.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

// OCR extracts raw text from a document file.
type OCR interface {
	ExtractText(ctx context.Context, documentPath string) (string, error)
}

// ExecOCR shells out to an OCR tool that takes the document path and prints
// the recognized text on stdout.
type ExecOCR struct {
	cmd      []string
	language string
	logger   *slog.Logger
}

func NewExecOCR(command, language string, logger *slog.Logger) (*ExecOCR, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse ocr command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("ocr command is empty")
	}
	return &ExecOCR{
		cmd:      args,
		language: language,
		logger:   logger.With(slog.String("component", "ocr")),
	}, nil
}

func (o *ExecOCR) ExtractText(ctx context.Context, documentPath string) (string, error) {
	base := o.cmd[0]
	args := append([]string{}, o.cmd[1:]...)
	args = append(args, "--input", documentPath)
	if o.language != "" {
		args = append(args, "--lang", o.language)
	}

	command := exec.CommandContext(ctx, base, args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("ocr command failed: %w: %s", err, stderr.String())
	}
	text := stdout.String()
	o.logger.Info("document text extracted",
		slog.String("document", documentPath),
		slog.Int("chars", len(text)))
	return text, nil
}
