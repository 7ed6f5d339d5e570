// Package claude calls the Anthropic messages API for story classification
// and executive summaries. Both operations ask for a strict JSON reply and
// reject anything the model returns outside that shape.
package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/hermes/internal/briefing"
	"github.com/linnemanlabs/hermes/internal/impact"
)

const defaultBaseURL = "https://api.anthropic.com"

// Client talks to the Claude messages API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates a new Claude API client with the given API key and model name.
func New(apiKey, model string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Message represents a single message in the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request represents the payload sent to the Claude API.
type Request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
}

// ContentBlock represents a single block of content in a response.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Response represents the payload received from the Claude API.
type Response struct {
	ID         string         `json:"id"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Usage represents the token usage information returned by the Claude API.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

const classifySystem = `You are a cybersecurity analyst triaging news for an executive daily briefing.
Given a story, classify it and rate how relevant it is to enterprise security leadership.
Respond with ONLY a JSON object, no prose, no code fences:
{"category": "<breach|threat-actor-activity|regulatory-action|vulnerability-disclosure|other>", "relevance": <integer 0-100>}`

const summarizeSystem = `You are a cybersecurity analyst writing for an executive daily briefing.
Given a story, produce a two-to-three sentence factual summary and one sentence of
commentary on why it matters to enterprise security leadership. Plain business
language, no jargon, no hedging. Respond with ONLY a JSON object, no prose, no
code fences:
{"summary": "<2-3 sentences>", "commentary": "<1 sentence>"}`

type classifyReply struct {
	Category  string `json:"category"`
	Relevance int    `json:"relevance"`
}

type summarizeReply struct {
	Summary    string `json:"summary"`
	Commentary string `json:"commentary"`
}

// Classify implements impact.Classifier.
func (c *Client) Classify(ctx context.Context, text string) (*impact.Classification, error) {
	raw, err := c.complete(ctx, classifySystem, text, 256)
	if err != nil {
		return nil, err
	}

	var reply classifyReply
	if err := json.Unmarshal([]byte(stripFences(raw)), &reply); err != nil {
		return nil, fmt.Errorf("parse classification %q: %w", raw, err)
	}

	return &impact.Classification{
		Category:  impact.Category(reply.Category),
		Relevance: reply.Relevance,
	}, nil
}

// Summarize implements briefing.Summarizer.
func (c *Client) Summarize(ctx context.Context, text string) (*briefing.Summary, error) {
	raw, err := c.complete(ctx, summarizeSystem, text, 1024)
	if err != nil {
		return nil, err
	}

	var reply summarizeReply
	if err := json.Unmarshal([]byte(stripFences(raw)), &reply); err != nil {
		return nil, fmt.Errorf("parse summary %q: %w", raw, err)
	}
	if strings.TrimSpace(reply.Summary) == "" {
		return nil, fmt.Errorf("model returned empty summary")
	}

	return &briefing.Summary{
		Summary:    strings.TrimSpace(reply.Summary),
		Commentary: strings.TrimSpace(reply.Commentary),
	}, nil
}

// complete sends one user message and returns the first text block.
func (c *Client) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	resp, err := c.send(ctx, &Request{
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []Message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", err
	}

	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response %s", resp.ID)
}

// send sends a request to the Claude API and returns the response.
func (c *Client) send(ctx context.Context, req *Request) (*Response, error) {
	req.Model = c.model

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("claude api error %d: %s", resp.StatusCode, string(respBody))
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &out, nil
}

// stripFences tolerates a fenced reply even though the prompt forbids it.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
