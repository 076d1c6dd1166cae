package images

import (
	"context"
	"fmt"

	"agent-trinity-go/internal/models"

	"github.com/sashabaranov/go-openai"
)

// Generator produces profile and banner images for new agents. Callers treat
// failures as non-fatal and continue without the image.
type Generator struct {
	client *openai.Client
	model  string
	size   string
}

func NewGenerator(cfg models.ImagesConfig) *Generator {
	if cfg.ApiKey == "" {
		return &Generator{}
	}
	return &Generator{
		client: openai.NewClient(cfg.ApiKey),
		model:  cfg.Model,
		size:   cfg.Size,
	}
}

// Enabled reports whether image generation is configured.
func (g *Generator) Enabled() bool {
	return g.client != nil
}

// GenerateProfileImage returns a hosted URL for a generated avatar.
func (g *Generator) GenerateProfileImage(ctx context.Context, agentName string) (string, error) {
	prompt := fmt.Sprintf("Minimalist geometric avatar for an autonomous software agent named %q, flat colors, no text", agentName)
	return g.generate(ctx, prompt)
}

// GenerateBannerImage returns a hosted URL for a generated profile banner.
func (g *Generator) GenerateBannerImage(ctx context.Context, agentName string) (string, error) {
	prompt := fmt.Sprintf("Wide abstract banner for an autonomous software agent named %q, subtle gradients, no text", agentName)
	return g.generate(ctx, prompt)
}

func (g *Generator) generate(ctx context.Context, prompt string) (string, error) {
	if g.client == nil {
		return "", fmt.Errorf("image generation not configured")
	}

	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          g.model,
		Size:           g.size,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("no image data in response")
	}
	return resp.Data[0].URL, nil
}
