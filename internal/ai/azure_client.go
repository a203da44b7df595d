package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kdimtricp/skysight/internal/models"
	"github.com/m-mizutani/goerr/v2"
)

const (
	azureAnalyzePath = "/computervision/imageanalysis:analyze"
	azureAPIVersion  = "2024-02-01"
	maxErrorBody     = 4096
)

// AzureVisionClient calls the Azure AI Vision Image Analysis 4.0 REST API for
// a caption and OCR lines.
type AzureVisionClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

type AzureOption func(*AzureVisionClient)

func WithTimeout(timeout time.Duration) AzureOption {
	return func(c *AzureVisionClient) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func WithHTTPClient(client *http.Client) AzureOption {
	return func(c *AzureVisionClient) {
		c.httpClient = client
	}
}

func NewAzureVisionClient(endpoint, apiKey string, opts ...AzureOption) *AzureVisionClient {
	c := &AzureVisionClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type azureAnalyzeResponse struct {
	ModelVersion  string              `json:"modelVersion"`
	CaptionResult *azureCaptionResult `json:"captionResult"`
	ReadResult    *azureReadResult    `json:"readResult"`
	Error         *azureError         `json:"error"`
}

type azureCaptionResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type azureReadResult struct {
	Blocks []azureBlock `json:"blocks"`
}

type azureBlock struct {
	Lines []azureLine `json:"lines"`
}

type azureLine struct {
	Text            string         `json:"text"`
	BoundingPolygon []models.Point `json:"boundingPolygon"`
}

type azureError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *AzureVisionClient) analyzeURL() string {
	query := url.Values{}
	query.Set("api-version", azureAPIVersion)
	query.Set("features", "caption,read")
	query.Set("gender-neutral-caption", "true")
	return c.endpoint + azureAnalyzePath + "?" + query.Encode()
}

func (c *AzureVisionClient) Analyze(ctx context.Context, imageData []byte) (*ImageAnalysis, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.analyzeURL(), bytes.NewReader(imageData))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}

	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to make request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read response")
	}

	var analyzeResp azureAnalyzeResponse
	if err := json.Unmarshal(body, &analyzeResp); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal response",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", truncate(body, maxErrorBody)))
	}

	if analyzeResp.Error != nil {
		return nil, goerr.New("Azure Vision API error: "+analyzeResp.Error.Message,
			goerr.V("status", resp.StatusCode),
			goerr.V("code", analyzeResp.Error.Code))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("unexpected status from Azure Vision API",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", truncate(body, maxErrorBody)))
	}

	analysis := &ImageAnalysis{}

	if cr := analyzeResp.CaptionResult; cr != nil {
		text, confidence := cr.Text, cr.Confidence
		analysis.Caption = models.Caption{
			Text:       &text,
			Confidence: &confidence,
		}
	}

	if analyzeResp.ReadResult != nil {
		for _, block := range analyzeResp.ReadResult.Blocks {
			for _, line := range block.Lines {
				analysis.ReadText = append(analysis.ReadText, models.TextLine{
					Text:        line.Text,
					BoundingBox: line.BoundingPolygon,
				})
			}
		}
	}

	if err := validate(analysis); err != nil {
		return nil, err
	}

	return analysis, nil
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
