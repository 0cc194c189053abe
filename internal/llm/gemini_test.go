package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/raine/tori-extract/internal/extraction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiVision_DetectObjects(t *testing.T) {
	models := &fakeModels{reply: `{"objects": [{"name": "desk", "confidence": 0.8, "frame_id": "frame_1"}]}`}
	g := &GeminiVision{models: models}

	objects, err := g.DetectObjects(context.Background(), testFrames())
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "desk", objects[0].Name)
	assert.Equal(t, 2.0, objects[0].Timestamp)

	assert.Equal(t, geminiModel, models.model)
	// prompt, then a label and an image per frame
	require.Len(t, models.parts, 5)
	assert.Contains(t, models.parts[1].Text, "frame_0")
	require.NotNil(t, models.parts[2].InlineData)
	assert.Equal(t, "image/jpeg", models.parts[2].InlineData.MIMEType)
	require.NotNil(t, models.config)
	assert.Equal(t, "application/json", models.config.ResponseMIMEType)
	assert.Equal(t, detectionSchema, models.config.ResponseSchema)
}

func TestGeminiVision_DetectObjects_Errors(t *testing.T) {
	g := &GeminiVision{models: &fakeModels{}}
	_, err := g.DetectObjects(context.Background(), nil)
	assert.Error(t, err)

	g = &GeminiVision{models: &fakeModels{err: errors.New("quota exceeded")}}
	_, err = g.DetectObjects(context.Background(), testFrames())
	assert.ErrorContains(t, err, "quota exceeded")

	g = &GeminiVision{models: &fakeModels{noParts: true}}
	_, err = g.DetectObjects(context.Background(), testFrames())
	assert.ErrorContains(t, err, "no response from Gemini")
}

func TestGeminiVision_FilterSellable(t *testing.T) {
	models := &fakeModels{reply: `{"items": [{"name": "Desk", "category": "Furniture", "estimated_price": 40, "frame_id": "frame_1"}]}`}
	g := &GeminiVision{models: models}

	items, err := g.FilterSellable(context.Background(), []extraction.DetectedObject{
		{Name: "desk", FrameID: "frame_1"},
		{Name: "wall", FrameID: "frame_0"},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 40.0, items[0].EstimatedPrice)

	assert.Equal(t, geminiLiteModel, models.model)
	require.Len(t, models.parts, 1)
	assert.Contains(t, models.parts[0].Text, `"name": "wall"`)
	assert.Contains(t, models.parts[0].Text, "Furniture")
}

func TestGeminiVision_FilterSellable_NoObjects(t *testing.T) {
	models := &fakeModels{}
	g := &GeminiVision{models: models}

	items, err := g.FilterSellable(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, models.calls)
}

func TestGeminiText_Generate(t *testing.T) {
	models := &fakeModels{reply: "  Sure, 40 works!  "}
	g := &GeminiText{models: models}

	text, err := g.Generate(context.Background(), "be nice", "offer 40")
	require.NoError(t, err)
	assert.Equal(t, "Sure, 40 works!", text)
	require.NotNil(t, models.config)
	require.NotNil(t, models.config.SystemInstruction)
	assert.Equal(t, "be nice", models.config.SystemInstruction.Parts[0].Text)
}

func TestGeminiUsage(t *testing.T) {
	models := &fakeModels{reply: "{}"}
	res, err := models.GenerateContent(context.Background(), geminiModel, nil, nil)
	require.NoError(t, err)

	usage := geminiUsage(geminiModel, res)
	assert.Equal(t, int64(1000), usage.InputTokens)
	assert.Equal(t, int64(200), usage.OutputTokens)
	assert.InDelta(t, 0.0005+0.0006, usage.CostUSD, 1e-9)
}
