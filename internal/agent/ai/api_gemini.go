package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GeminiProvider implements the Provider interface for Google Gemini
// over the raw streaming HTTP API.
type GeminiProvider struct {
	apiKey string
	model  string
	client *http.Client
}

// GeminiContent represents content in Gemini format
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart represents a part of content
type GeminiPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *GeminiBlob     `json:"inlineData,omitempty"`
}

// GeminiBlob carries base64 binary content
type GeminiBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// GeminiRequest represents a request to Gemini
type GeminiRequest struct {
	Contents          []GeminiContent  `json:"contents"`
	SystemInstruction *GeminiContent   `json:"systemInstruction,omitempty"`
	GenerationConfig  *GeminiGenConfig `json:"generationConfig,omitempty"`
	Tools             []GeminiTool     `json:"tools,omitempty"`
}

// GeminiGenConfig represents generation configuration
type GeminiGenConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

// GeminiTool represents a tool definition for Gemini
type GeminiTool struct {
	FunctionDeclarations []GeminiFunctionDecl `json:"functionDeclarations"`
}

// GeminiFunctionDecl represents a function declaration
type GeminiFunctionDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// GeminiStreamResponse represents a streaming response chunk
type GeminiStreamResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text         string `json:"text,omitempty"`
				FunctionCall *struct {
					Name string          `json:"name"`
					Args json.RawMessage `json:"args"`
				} `json:"functionCall,omitempty"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiProvider{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// ID returns the provider identifier
func (p *GeminiProvider) ID() string {
	return "gemini"
}

// Stream sends a request to Gemini and streams the response
func (p *GeminiProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error) {
	resultCh := make(chan StreamEvent, 100)

	go func() {
		defer close(resultCh)

		contents := p.buildContents(req.Messages)

		// Gemini requires alternating user/model turns
		contents = p.normalizeContents(contents)

		if len(contents) == 0 {
			resultCh <- StreamEvent{
				Type:  EventTypeError,
				Error: fmt.Errorf("no valid messages to send"),
			}
			return
		}

		geminiReq := GeminiRequest{
			Contents: contents,
		}

		if req.System != "" {
			geminiReq.SystemInstruction = &GeminiContent{
				Parts: []GeminiPart{{Text: req.System}},
			}
		}

		if req.MaxTokens > 0 {
			geminiReq.GenerationConfig = &GeminiGenConfig{MaxOutputTokens: req.MaxTokens}
		}

		if len(req.Tools) > 0 {
			funcs := make([]GeminiFunctionDecl, 0, len(req.Tools))
			for _, tool := range req.Tools {
				funcs = append(funcs, GeminiFunctionDecl{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  tool.InputSchema,
				})
			}
			geminiReq.Tools = []GeminiTool{{FunctionDeclarations: funcs}}
		}

		body, err := json.Marshal(geminiReq)
		if err != nil {
			resultCh <- StreamEvent{
				Type:  EventTypeError,
				Error: fmt.Errorf("failed to marshal request: %w", err),
			}
			return
		}

		model := p.model
		if req.Model != "" {
			model = req.Model
		}
		url := fmt.Sprintf(
			"https://generativelanguage.googleapis.com/v1beta/models/%s:streamGenerateContent?alt=sse&key=%s",
			model, p.apiKey,
		)

		httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			resultCh <- StreamEvent{
				Type:  EventTypeError,
				Error: fmt.Errorf("failed to create request: %w", err),
			}
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(httpReq)
		if err != nil {
			resultCh <- StreamEvent{
				Type:  EventTypeError,
				Error: fmt.Errorf("request failed: %w", err),
			}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resultCh <- StreamEvent{
				Type:  EventTypeError,
				Error: fmt.Errorf("Gemini error (%d): %s", resp.StatusCode, string(body)),
			}
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

		toolCallCounter := 0
		var usage Usage

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Text()

			// SSE format: "data: {...}"
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			data := strings.TrimPrefix(line, "data: ")
			if data == "" {
				continue
			}

			var chunk GeminiStreamResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}

			if chunk.Error != nil {
				resultCh <- StreamEvent{
					Type:  EventTypeError,
					Error: fmt.Errorf("Gemini API error: %s", chunk.Error.Message),
				}
				return
			}

			if chunk.UsageMetadata != nil {
				usage.InputTokens = chunk.UsageMetadata.PromptTokenCount
				usage.OutputTokens = chunk.UsageMetadata.CandidatesTokenCount
			}

			for _, candidate := range chunk.Candidates {
				for _, part := range candidate.Content.Parts {
					if part.Text != "" {
						resultCh <- StreamEvent{
							Type: EventTypeText,
							Text: part.Text,
						}
					}

					if part.FunctionCall != nil {
						toolCallCounter++
						resultCh <- StreamEvent{
							Type: EventTypeToolCall,
							ToolCall: &ToolCall{
								ID:    fmt.Sprintf("gemini-call-%d", toolCallCounter),
								Name:  part.FunctionCall.Name,
								Input: part.FunctionCall.Args,
							},
						}
					}
				}

				if candidate.FinishReason == "STOP" || candidate.FinishReason == "MAX_TOKENS" {
					resultCh <- StreamEvent{Type: EventTypeDone, Usage: &usage}
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			resultCh <- StreamEvent{
				Type:  EventTypeError,
				Error: fmt.Errorf("stream read error: %w", err),
			}
			return
		}

		resultCh <- StreamEvent{Type: EventTypeDone, Usage: &usage}
	}()

	return resultCh, nil
}

// buildContents converts conversation messages to Gemini format
func (p *GeminiProvider) buildContents(msgs []Message) []GeminiContent {
	contents := make([]GeminiContent, 0, len(msgs))

	for _, msg := range msgs {
		switch msg.Role {
		case "user":
			if len(msg.Parts) > 0 {
				parts := make([]GeminiPart, 0, len(msg.Parts))
				for _, part := range msg.Parts {
					switch part.Kind {
					case PartImage:
						parts = append(parts, GeminiPart{InlineData: &GeminiBlob{
							MimeType: part.MediaType,
							Data:     base64.StdEncoding.EncodeToString(part.Data),
						}})
					case PartFile:
						parts = append(parts, GeminiPart{
							Text: fmt.Sprintf("File %s:\n%s", part.FileName, string(part.Data)),
						})
					case PartText:
						if part.Text != "" {
							parts = append(parts, GeminiPart{Text: part.Text})
						}
					}
				}
				if len(parts) > 0 {
					contents = append(contents, GeminiContent{Role: "user", Parts: parts})
				}
				continue
			}
			if msg.Content != "" {
				contents = append(contents, GeminiContent{
					Role:  "user",
					Parts: []GeminiPart{{Text: msg.Content}},
				})
			}

		case "assistant":
			content := msg.Content
			if content == "" && len(msg.ToolCalls) > 0 {
				var lines []string
				for _, c := range msg.ToolCalls {
					lines = append(lines, fmt.Sprintf("[Using tool: %s]", c.Name))
				}
				content = strings.Join(lines, "\n")
			}
			if content != "" {
				contents = append(contents, GeminiContent{
					Role:  "model",
					Parts: []GeminiPart{{Text: content}},
				})
			}

		case "tool":
			// Tool results go back as user messages.
			for _, r := range msg.ToolResults {
				contents = append(contents, GeminiContent{
					Role: "user",
					Parts: []GeminiPart{{
						Text: fmt.Sprintf("[Tool Result: %s]\n%s", r.ToolCallID, r.Content),
					}},
				})
			}
		}
	}

	return contents
}

// normalizeContents ensures proper alternating turns for Gemini
func (p *GeminiProvider) normalizeContents(contents []GeminiContent) []GeminiContent {
	if len(contents) == 0 {
		return contents
	}

	normalized := make([]GeminiContent, 0, len(contents))
	var lastRole string

	for _, c := range contents {
		// Gemini requires the conversation to start with user
		if len(normalized) == 0 && c.Role != "user" {
			normalized = append(normalized, GeminiContent{
				Role:  "user",
				Parts: []GeminiPart{{Text: "Continue."}},
			})
		}

		// Merge consecutive same-role messages
		if c.Role == lastRole && len(normalized) > 0 {
			last := &normalized[len(normalized)-1]
			last.Parts = append(last.Parts, c.Parts...)
		} else {
			normalized = append(normalized, c)
			lastRole = c.Role
		}
	}

	return normalized
}
