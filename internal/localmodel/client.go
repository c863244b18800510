package localmodel

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

// Endpoint keys select which model capability handles a query.
const (
	EndpointToolSuggest       = "tool-suggest"
	EndpointWorkflowSuggest   = "workflow-suggest"
	EndpointWorkflowExecution = "workflow-execution"
)

var endpointPaths = map[string]string{
	EndpointToolSuggest:       "/suggest-tools-enhanced",
	EndpointWorkflowSuggest:   "/suggest-workflows-enhanced",
	EndpointWorkflowExecution: "/workflow-execution",
}

const defaultEndpointPath = "/suggest-tools-enhanced"

// FallbackReply is returned when a 2xx response carries none of the known
// reply fields.
const FallbackReply = "Sorry, I couldn't process your request."

type Client struct {
	httpClient *http.Client
	baseURL    string
	topK       int
}

func NewClient(baseURL string, topK int, timeout time.Duration) *Client {
	if topK <= 0 {
		topK = 5
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		topK:       topK,
	}
}

// EndpointPath maps an endpoint key to its URL path. Unknown or empty keys
// fall back to the tool-suggestion path.
func EndpointPath(key string) string {
	if path, ok := endpointPaths[key]; ok {
		return path
	}
	return defaultEndpointPath
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type queryResponse struct {
	Results string `json:"results"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Response string `json:"response"`
}

// Query posts the user's message to the endpoint selected by key and
// extracts the reply text. The upstream response contract is unstable, so
// extraction walks a priority chain: results, then the OpenAI-style choices
// content, then response, then a fixed fallback.
func (c *Client) Query(ctx context.Context, endpointKey, query string) (string, error) {
	bodyBytes, err := json.Marshal(queryRequest{Query: query, TopK: c.topK})
	if err != nil {
		return "", fmt.Errorf("marshal model request failed: %w", err)
	}

	url := c.baseURL + EndpointPath(endpointKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("build model request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read model response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("model response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed queryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse model json failed: %w", err)
	}
	return extractReply(parsed), nil
}

func extractReply(parsed queryResponse) string {
	if strings.TrimSpace(parsed.Results) != "" {
		return parsed.Results
	}
	if len(parsed.Choices) > 0 && parsed.Choices[0].Message.Content != "" {
		return parsed.Choices[0].Message.Content
	}
	if parsed.Response != "" {
		return parsed.Response
	}
	return FallbackReply
}
