package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const structurePrompt = `You are an expert assistant tasked with converting OCR text from a questionnaire into a structured JSON format.
The target JSON structure is:
{
  "title": "String - The main title of the questionnaire",
  "description": "String - A brief description or introductory text for the questionnaire.",
  "questions": [
    {
      "id": "String - A unique identifier, e.g., Q1, Q2",
      "text": "String - The exact text of the question",
      "type": "String - Typically 'scale'. Use 'boolean_custom_map' where applicable.",
      "min_value": "Integer - The minimum numerical value for the scale",
      "max_value": "Integer - The maximum numerical value for the scale",
      "options_text": "String - A user-friendly instruction mapping the verbal anchors to the numbers, suitable for audio presentation."
    }
  ]
}

The OCR process may introduce errors or misread table structures. Identify distinct questions and their scales even when the text is noisy. Repeated scale labels usually indicate the options for a group of questions. Ignore page breaks and OCR artifacts. Keep all question and option text in the document's original language.

Here is the OCR text:
--- OCR START ---
%s
--- OCR END ---

Provide ONLY the JSON object as your response, without any surrounding text or explanations.`

// StructureClient sends OCR text to a chat-completions endpoint and returns
// the model's JSON reply.
type StructureClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewStructureClient(endpoint, apiKey, model string) *StructureClient {
	return &StructureClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// StructureText asks the model to reconstruct a questionnaire definition
// from raw document text. The reply is the bare JSON document.
func (c *StructureClient) StructureText(ctx context.Context, ocrText string) ([]byte, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are an expert assistant specialized in converting OCR text from questionnaires into structured JSON."},
			{Role: "user", Content: fmt.Sprintf(structurePrompt, ocrText)},
		},
	}
	payload.ResponseFormat.Type = "json_object"

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("model endpoint returned status %s: %s", resp.Status, detail)
	}

	var reply chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(reply.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}
	return []byte(stripJSONFences(reply.Choices[0].Message.Content)), nil
}

// stripJSONFences removes markdown code fences some models wrap around JSON.
func stripJSONFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
