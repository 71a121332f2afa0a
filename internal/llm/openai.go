package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrNoAPIKey is returned when the provider is used without a key.
var ErrNoAPIKey = fmt.Errorf("openai: api key not configured")

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAIClassifier implements Classifier over the chat completions API.
type OpenAIClassifier struct {
	apiKey  string
	model   string
	baseURL string
	client  *retryablehttp.Client
}

// NewOpenAIClassifier builds a classifier with retrying HTTP transport.
func NewOpenAIClassifier(apiKey, model string) *OpenAIClassifier {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil
	return &OpenAIClassifier{
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
		baseURL: defaultBaseURL,
		client:  client,
	}
}

// SetBaseURL overrides the API endpoint, used by tests.
func (c *OpenAIClassifier) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

const classifySystemPrompt = "You are a personal finance categorization assistant. " +
	"For each transaction in the input JSON array, return ONLY a valid JSON array of objects with keys: " +
	"id (string, echoed from input), category (string), subcategory (string), " +
	"confidence (number 0-1), reasoning (string, one sentence)."

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ClassifyBatch sends one chat completion request for the whole batch
// and parses the JSON verdicts. Confidence values are clamped to [0,1].
func (c *OpenAIClassifier) ClassifyBatch(ctx context.Context, records []Record) ([]Classification, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal records: %w", err)
	}
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: classifySystemPrompt},
			{Role: "user", Content: "Transactions JSON:\n" + string(payload)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("openai: parse response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("openai: api error %s: %s", parsed.Error.Type, parsed.Error.Message)
		}
		return nil, fmt.Errorf("openai: status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty response")
	}

	var out []Classification
	if err := decodeJSON(parsed.Choices[0].Message.Content, &out); err != nil {
		return nil, fmt.Errorf("openai: parse classifications: %w", err)
	}
	for i := range out {
		out[i].Confidence = clamp01(out[i].Confidence)
	}
	return out, nil
}

// decodeJSON tolerates markdown code fences around the model's JSON.
func decodeJSON(text string, v interface{}) error {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return json.Unmarshal([]byte(strings.TrimSpace(text)), v)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
