package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/raine/tori-extract/internal/extraction"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const (
	geminiModel     = "gemini-3-flash-preview"
	geminiLiteModel = "gemini-2.5-flash-lite"
)

// Gemini pricing (per million tokens)
const (
	geminiInputPricePerMillion      = 0.50
	geminiOutputPricePerMillion     = 3.00
	geminiLiteInputPricePerMillion  = 0.075
	geminiLiteOutputPricePerMillion = 0.30
)

// maxFramesPerRequest caps the images sent in one detection call.
const maxFramesPerRequest = 16

// contentGenerator is the subset of the genai client used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// GeminiVision detects objects in frames and decides which of them are
// sellable using Gemini.
type GeminiVision struct {
	models contentGenerator
}

// NewGeminiVision creates a vision analyzer on top of client.
func NewGeminiVision(client *genai.Client) *GeminiVision {
	return &GeminiVision{models: client.Models}
}

var detectionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"objects": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":        {Type: genai.TypeString},
					"description": {Type: genai.TypeString},
					"brand":       {Type: genai.TypeString},
					"condition":   {Type: genai.TypeString},
					"confidence":  {Type: genai.TypeNumber},
					"frame_id":    {Type: genai.TypeString},
				},
				Required:         []string{"name", "frame_id", "confidence"},
				PropertyOrdering: []string{"name", "description", "brand", "condition", "confidence", "frame_id"},
			},
		},
	},
	Required: []string{"objects"},
}

var sellabilitySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"items": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":            {Type: genai.TypeString},
					"category":        {Type: genai.TypeString, Enum: extraction.Categories},
					"estimated_price": {Type: genai.TypeNumber},
					"condition":       {Type: genai.TypeString},
					"description":     {Type: genai.TypeString},
					"frame_id":        {Type: genai.TypeString},
				},
				Required:         []string{"name", "category", "estimated_price", "frame_id"},
				PropertyOrdering: []string{"name", "category", "estimated_price", "condition", "description", "frame_id"},
			},
		},
	},
	Required: []string{"items"},
}

// DetectObjects sends all frames in one request and returns every object the
// model lists.
func (g *GeminiVision) DetectObjects(ctx context.Context, frames []extraction.Frame) ([]extraction.DetectedObject, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames provided")
	}
	if len(frames) > maxFramesPerRequest {
		frames = frames[:maxFramesPerRequest]
	}

	parts := []*genai.Part{genai.NewPartFromText(detectionPrompt)}
	for _, f := range frames {
		parts = append(parts,
			genai.NewPartFromText(fmt.Sprintf("Frame %s (%.1fs):", f.ID, f.Timestamp)),
			&genai.Part{InlineData: &genai.Blob{Data: f.Image, MIMEType: frameMIMEType(f)}},
		)
	}

	text, usage, err := g.generate(ctx, geminiModel, parts, detectionSchema)
	if err != nil {
		return nil, fmt.Errorf("object detection request failed: %w", err)
	}

	objects, err := parseDetections(text, frames)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("model", geminiModel).
		Int("frameCount", len(frames)).
		Int("objectCount", len(objects)).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("object detection llm call")

	return objects, nil
}

// FilterSellable asks the lite model which detected objects can be sold and
// what they are worth.
func (g *GeminiVision) FilterSellable(ctx context.Context, objects []extraction.DetectedObject) ([]extraction.Item, error) {
	if len(objects) == 0 {
		return nil, nil
	}

	objectsJSON, err := json.MarshalIndent(objects, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode objects: %w", err)
	}
	prompt := fmt.Sprintf(sellabilityPrompt, strings.Join(extraction.Categories, ", "), objectsJSON)

	text, usage, err := g.generate(ctx, geminiLiteModel, []*genai.Part{genai.NewPartFromText(prompt)}, sellabilitySchema)
	if err != nil {
		return nil, fmt.Errorf("sellability request failed: %w", err)
	}

	items, err := parseSellable(text)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("model", geminiLiteModel).
		Int("objectCount", len(objects)).
		Int("itemCount", len(items)).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("sellability llm call")

	return items, nil
}

// generate runs a structured-output request and returns the response text.
func (g *GeminiVision) generate(ctx context.Context, model string, parts []*genai.Part, schema *genai.Schema) (string, Usage, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
	result, err := g.models.GenerateContent(ctx, model, []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}, config)
	if err != nil {
		return "", Usage{}, err
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", Usage{}, fmt.Errorf("no response from Gemini")
	}
	return result.Text(), geminiUsage(model, result), nil
}

func geminiUsage(model string, result *genai.GenerateContentResponse) Usage {
	usage := Usage{}
	if result.UsageMetadata == nil {
		return usage
	}
	usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
	usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
	usage.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
	if model == geminiLiteModel {
		usage.CostUSD = calculateCost(usage.InputTokens, usage.OutputTokens, geminiLiteInputPricePerMillion, geminiLiteOutputPricePerMillion)
	} else {
		usage.CostUSD = calculateCost(usage.InputTokens, usage.OutputTokens, geminiInputPricePerMillion, geminiOutputPricePerMillion)
	}
	return usage
}

func frameMIMEType(f extraction.Frame) string {
	if f.MIMEType != "" {
		return f.MIMEType
	}
	return "image/jpeg"
}

// GeminiText implements TextGenerator with the lite model.
type GeminiText struct {
	models contentGenerator
}

// NewGeminiText creates a text generator on top of client.
func NewGeminiText(client *genai.Client) *GeminiText {
	return &GeminiText{models: client.Models}
}

// Generate implements TextGenerator.
func (g *GeminiText) Generate(ctx context.Context, system, prompt string) (string, error) {
	var config *genai.GenerateContentConfig
	if system != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
	}

	result, err := g.models.GenerateContent(ctx, geminiLiteModel, []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(prompt)}, genai.RoleUser),
	}, config)
	if err != nil {
		return "", fmt.Errorf("gemini lite call failed: %w", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from gemini lite")
	}

	usage := geminiUsage(geminiLiteModel, result)
	log.Info().
		Str("model", geminiLiteModel).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("text llm call")

	return strings.TrimSpace(result.Text()), nil
}
