package ai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/kdimtricp/skysight/internal/models"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

const geminiPrompt = `Describe this image in one short, gender-neutral sentence and rate how confident you are in that description between 0 and 1.
Also transcribe every line of legible text in the image, in reading order, with the pixel corners of each line.
Return an empty list when there is no text.`

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiVisionClient asks a Gemini model for a caption and OCR lines using a
// structured JSON response.
type GeminiVisionClient struct {
	models contentGenerator
	model  string
}

func NewGeminiVisionClient(ctx context.Context, config *Config) (*GeminiVisionClient, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  config.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.GeminiAPIKey == "" {
		clientConfig = &genai.ClientConfig{
			Project:  config.GeminiProject,
			Location: config.GeminiLocation,
			Backend:  genai.BackendVertexAI,
		}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	model := config.GeminiModel
	if model == "" {
		model = defaultGeminiModel
	}

	return &GeminiVisionClient{models: client.Models, model: model}, nil
}

type geminiAnalysis struct {
	Caption    string       `json:"caption"`
	Confidence float64      `json:"confidence"`
	Lines      []geminiLine `json:"lines"`
}

type geminiLine struct {
	Text        string         `json:"text"`
	BoundingBox []models.Point `json:"bounding_box"`
}

func geminiResponseSchema() *genai.Schema {
	point := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"x": {Type: genai.TypeInteger},
			"y": {Type: genai.TypeInteger},
		},
		Required: []string{"x", "y"},
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"caption": {
				Type:        genai.TypeString,
				Description: "One sentence description of the image",
			},
			"confidence": {
				Type:        genai.TypeNumber,
				Description: "Confidence in the caption between 0 and 1",
			},
			"lines": {
				Type:        genai.TypeArray,
				Description: "Lines of text recognized in the image",
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"text":         {Type: genai.TypeString},
						"bounding_box": {Type: genai.TypeArray, Items: point},
					},
					Required: []string{"text"},
				},
			},
		},
		Required: []string{"caption", "confidence", "lines"},
	}
}

func (c *GeminiVisionClient) Analyze(ctx context.Context, imageData []byte) (*ImageAnalysis, error) {
	mimeType := mimetype.Detect(imageData).String()
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}

	contents := []*genai.Content{
		{
			Role: genai.RoleUser,
			Parts: []*genai.Part{
				{InlineData: &genai.Blob{Data: imageData, MIMEType: mimeType}},
				{Text: geminiPrompt},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   geminiResponseSchema(),
	}

	resp, err := c.models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content", goerr.V("model", c.model), goerr.V("mime_type", mimeType))
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, goerr.New("invalid response structure from gemini")
	}

	rawJSON := resp.Candidates[0].Content.Parts[0].Text

	var result geminiAnalysis
	if err := json.Unmarshal([]byte(rawJSON), &result); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal gemini analysis", goerr.V("json", rawJSON))
	}

	analysis := &ImageAnalysis{
		Caption: models.Caption{
			Text:       &result.Caption,
			Confidence: &result.Confidence,
		},
	}
	for _, line := range result.Lines {
		analysis.ReadText = append(analysis.ReadText, models.TextLine{
			Text:        line.Text,
			BoundingBox: line.BoundingBox,
		})
	}

	if err := validate(analysis); err != nil {
		return nil, err
	}

	return analysis, nil
}
