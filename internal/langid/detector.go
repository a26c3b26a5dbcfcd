package langid

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const systemPrompt = "You label the dominant language of scanned document pages."

const userPrompt = "Look at the body text of this page. Is it written mainly in Chinese? " +
	"Answer with exactly one word: Chinese or Non-Chinese."

// Detector labels the dominant language of one rendered page image.
type Detector interface {
	// LabelImage sends a JPEG-encoded page image to the model and returns
	// its raw answer.
	LabelImage(ctx context.Context, jpegData []byte) (string, error)
}

func dataURL(jpegData []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegData)
}

// SDKDetector labels pages through the OpenAI SDK against any
// OpenAI-compatible endpoint.
type SDKDetector struct {
	client openai.Client
	model  string
	detail string
}

// NewSDKDetector creates a detector backed by the OpenAI SDK.
func NewSDKDetector(apiKey, baseURL, model, detail string) *SDKDetector {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &SDKDetector{
		client: openai.NewClient(opts...),
		model:  model,
		detail: detail,
	}
}

func (d *SDKDetector) LabelImage(ctx context.Context, jpegData []byte) (string, error) {
	resp, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(d.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    dataURL(jpegData),
					Detail: d.detail,
				}),
				openai.TextContentPart(userPrompt),
			}),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// HTTPDetector labels pages through a raw OpenAI-compatible HTTP endpoint,
// for services whose responses the SDK rejects.
type HTTPDetector struct {
	apiKey  string
	baseURL string
	model   string
	detail  string
	client  *http.Client
}

// NewHTTPDetector creates a detector that talks to {baseURL}/chat/completions
// directly.
func NewHTTPDetector(apiKey, baseURL, model, detail string) *HTTPDetector {
	return &HTTPDetector{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		detail:  detail,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

type httpChatRequest struct {
	Model    string            `json:"model"`
	Messages []httpChatMessage `json:"messages"`
}

type httpChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type httpContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *httpImageURL `json:"image_url,omitempty"`
}

type httpImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type httpChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (d *HTTPDetector) LabelImage(ctx context.Context, jpegData []byte) (string, error) {
	reqBody := httpChatRequest{
		Model: d.model,
		Messages: []httpChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []httpContentPart{
				{Type: "image_url", ImageURL: &httpImageURL{URL: dataURL(jpegData), Detail: d.detail}},
				{Type: "text", Text: userPrompt},
			}},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed httpChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat completion error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
