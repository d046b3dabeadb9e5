// Package gemini generates travel text with the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"travel-gateway/internal/domain"
)

const DefaultModel = "gemini-2.0-flash"

// contentGenerator is the part of *genai.GenerativeModel used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Client struct {
	client   *genai.Client
	model    string
	newModel func(instruction string) contentGenerator
}

// New dials the Gemini API. Extra options are passed to genai.NewClient.
func New(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: api key must not be empty")
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	c := &Client{client: client, model: model}
	c.newModel = c.generativeModel
	return c, nil
}

func (c *Client) generativeModel(instruction string) contentGenerator {
	m := c.client.GenerativeModel(c.model)
	if instruction != "" {
		m.SystemInstruction = genai.NewUserContent(genai.Text(instruction))
	}
	return m
}

// Generate sends the instruction as the system instruction and the request
// as user content. The finish reason is passed through as its numeric code.
func (c *Client) Generate(ctx context.Context, prompt domain.Prompt) (domain.Generation, error) {
	resp, err := c.newModel(prompt.Instruction).GenerateContent(ctx, genai.Text(prompt.Request))
	if err != nil {
		return domain.Generation{}, fmt.Errorf("gemini: generate content: %w", err)
	}
	return generationFrom(resp)
}

func generationFrom(resp *genai.GenerateContentResponse) (domain.Generation, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return domain.Generation{}, errors.New("gemini: no candidates in response")
	}
	cand := resp.Candidates[0]

	var b strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return domain.Generation{
		Text:         b.String(),
		FinishReason: int32(cand.FinishReason),
	}, nil
}

func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
