package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client talks to the OpenAI Responses API. The zero value is not usable;
// create one with NewClient.
type Client struct {
	Model      string // overrides OPENAI_MODEL when set
	BaseURL    string // overrides OPENAI_BASE_URL when set
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// NewClient creates a Client with the default timeout and retry budget.
// An empty model defers to the OPENAI_MODEL environment variable.
func NewClient(model string) *Client {
	return &Client{
		Model:      model,
		Timeout:    120 * time.Second,
		MaxRetries: 4,
		HTTPClient: &http.Client{},
	}
}

// Chat sends the conversation plus tool schemas to the model endpoint and
// returns the normalized assistant message. The API key is read from the
// environment on every call; a missing key is a ConfigError and is never
// retried.
func (c *Client) Chat(ctx context.Context, messages []Message, tools []ToolSchema) (Message, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return Message{}, &ConfigError{Message: "OPENAI_API_KEY is required"}
	}

	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := c.Model
	if model == "" {
		model = os.Getenv("OPENAI_MODEL")
	}
	if model == "" {
		model = "gpt-5.2"
	}

	payload := map[string]any{
		"model":       model,
		"input":       toResponsesInput(messages),
		"tools":       toResponsesTools(tools),
		"temperature": 0.2,
		"text":        map[string]any{"format": map[string]any{"type": "text"}},
	}

	// Optional knobs: avoid sending fields models might reject unless set.
	if effort := os.Getenv("OPENAI_REASONING_EFFORT"); effort != "" {
		payload["reasoning"] = map[string]any{"effort": effort}
	}
	if store, ok := os.LookupEnv("OPENAI_STORE"); ok {
		switch strings.ToLower(store) {
		case "1", "true", "yes":
			payload["store"] = true
		default:
			payload["store"] = false
		}
	}

	raw, err := c.postJSON(ctx, baseURL+"/responses", payload, apiKey)
	if err != nil {
		return Message{}, err
	}
	return parseResponse(raw), nil
}

// postJSON POSTs the payload with bearer auth, retrying transient failures
// with exponential backoff plus jitter.
func (c *Client) postJSON(ctx context.Context, url string, payload map[string]any, apiKey string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		reqCtx := ctx
		var cancel context.CancelFunc
		if c.Timeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		}

		resp, err := c.doOnce(reqCtx, httpClient, url, body, apiKey)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return resp, nil
		}

		lastErr = err
		apiErr, isAPI := err.(*APIError)
		if isAPI && !retryableStatus(apiErr.Status) {
			return nil, err
		}
		if attempt < c.MaxRetries {
			if serr := sleepBackoff(ctx, attempt); serr != nil {
				return nil, serr
			}
			continue
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, client *http.Client, url string, body []byte, apiKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, string(data))
	}
	return data, nil
}

// newAPIError builds an APIError, extracting a friendlier message for rate
// limits when the error body carries one.
func newAPIError(status int, body string) *APIError {
	apiErr := &APIError{Status: status, Body: strings.TrimSpace(body)}
	if status == 429 {
		var errObj struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal([]byte(body), &errObj) == nil && errObj.Error.Message != "" {
			apiErr.Message = "Rate limit exceeded: " + errObj.Error.Message
		}
	}
	return apiErr
}

// sleepBackoff waits min(8s, 0.5*2^attempt) plus up to 0.2s of jitter, or
// returns early if the context is cancelled.
func sleepBackoff(ctx context.Context, attempt int) error {
	base := math.Min(8.0, 0.5*math.Pow(2, float64(attempt)))
	delay := time.Duration((base + rand.Float64()*0.2) * float64(time.Second))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// toResponsesInput converts the neutral message list into Responses API
// input items. System messages are relabeled to the developer role; prior
// assistant tool calls become explicit function_call items so later
// function_call_output items can reference them by call id.
func toResponsesInput(messages []Message) []map[string]any {
	items := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role == RoleSystem {
			role = "developer"
		}

		if m.Role == RoleTool {
			if m.ToolCallID != "" {
				items = append(items, map[string]any{
					"type":    "function_call_output",
					"call_id": m.ToolCallID,
					"output":  m.Text(),
				})
			}
			continue
		}

		if m.Role == RoleAssistant {
			for _, call := range m.ToolCalls {
				if call.ID == "" || call.Name == "" {
					continue
				}
				args := call.Arguments
				if args == "" {
					args = "{}"
				}
				items = append(items, map[string]any{
					"type":      "function_call",
					"call_id":   call.ID,
					"name":      call.Name,
					"arguments": args,
				})
			}
		}

		if m.Content == nil {
			continue
		}

		blockType := "input_text"
		if m.Role == RoleAssistant {
			blockType = "output_text"
		}
		items = append(items, map[string]any{
			"role": role,
			"content": []map[string]any{
				{"type": blockType, "text": *m.Content},
			},
		})
	}
	return items
}

// toResponsesTools converts tool schemas to Responses API tool items.
func toResponsesTools(tools []ToolSchema) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		item := map[string]any{"type": "function", "name": t.Name}
		if t.Description != "" {
			item["description"] = t.Description
		}
		if t.Parameters != nil {
			item["parameters"] = t.Parameters
		}
		out = append(out, item)
	}
	return out
}

type responseBody struct {
	Output     []responseItem `json:"output"`
	OutputText string         `json:"output_text"`
}

type responseItem struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	CallID    string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Content   []responseBlock `json:"content"`
}

type responseBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// parseResponse normalizes a Responses API body into an assistant Message.
// Text blocks are concatenated in order; function/tool call items keep their
// call id and name with arguments coerced to a string. Absent text yields a
// nil Content so the caller can distinguish it from an empty string.
func parseResponse(raw []byte) Message {
	var body responseBody
	_ = json.Unmarshal(raw, &body)

	var textParts []string
	var toolCalls []ToolCall

	for _, item := range body.Output {
		switch item.Type {
		case "message":
			for _, block := range item.Content {
				if block.Type == "output_text" {
					textParts = append(textParts, block.Text)
				}
			}
		case "function_call", "tool_call":
			callID := item.CallID
			if callID == "" {
				callID = item.ID
			}
			if callID == "" || item.Name == "" {
				continue
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:        callID,
				Name:      item.Name,
				Arguments: normalizeArguments(item.Arguments),
			})
		}
	}

	if len(textParts) == 0 && body.OutputText != "" {
		textParts = append(textParts, body.OutputText)
	}

	msg := Message{Role: RoleAssistant, ToolCalls: toolCalls}
	if len(textParts) > 0 {
		text := strings.TrimSpace(strings.Join(textParts, ""))
		msg.Content = &text
	}
	return msg
}

// normalizeArguments coerces a tool call's arguments to a string form:
// a JSON string stays as its value, an object is kept as compact JSON, and
// anything absent or unparseable becomes "{}".
func normalizeArguments(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asObject map[string]any
	if err := json.Unmarshal(raw, &asObject); err == nil {
		compact, err := json.Marshal(asObject)
		if err == nil {
			return string(compact)
		}
	}
	return "{}"
}
