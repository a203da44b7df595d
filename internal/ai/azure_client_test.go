package ai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAzureVisionClientAnalyze(t *testing.T) {
	image := []byte("\x89PNG\r\n\x1a\n\x00\x00")

	tests := []struct {
		name            string
		status          int
		body            string
		expectErr       bool
		expectCaption   string
		expectConf      float64
		expectReadLines int
	}{
		{
			name:   "caption and read result",
			status: http.StatusOK,
			body: `{
				"modelVersion": "2023-10-01",
				"captionResult": {"text": "a cat sitting on a sign", "confidence": 0.87},
				"readResult": {"blocks": [{"lines": [
					{"text": "STOP", "boundingPolygon": [{"x":1,"y":2},{"x":30,"y":2},{"x":30,"y":12},{"x":1,"y":12}]},
					{"text": "AHEAD", "boundingPolygon": [{"x":1,"y":14},{"x":40,"y":14},{"x":40,"y":24},{"x":1,"y":24}]}
				]}]}
			}`,
			expectCaption:   "a cat sitting on a sign",
			expectConf:      0.87,
			expectReadLines: 2,
		},
		{
			name:          "caption only",
			status:        http.StatusOK,
			body:          `{"captionResult": {"text": "a dog", "confidence": 0.5}, "readResult": {"blocks": []}}`,
			expectCaption: "a dog",
			expectConf:    0.5,
		},
		{
			name:      "api error envelope",
			status:    http.StatusBadRequest,
			body:      `{"error": {"code": "InvalidImageFormat", "message": "Input data is not a valid image."}}`,
			expectErr: true,
		},
		{
			name:      "unparseable body",
			status:    http.StatusOK,
			body:      `<html>gateway timeout</html>`,
			expectErr: true,
		},
		{
			name:      "non-200 without envelope",
			status:    http.StatusServiceUnavailable,
			body:      `{}`,
			expectErr: true,
		},
		{
			name:      "confidence out of range",
			status:    http.StatusOK,
			body:      `{"captionResult": {"text": "a dog", "confidence": 1.5}}`,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("expected POST, got %s", r.Method)
				}
				if r.URL.Path != azureAnalyzePath {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				q := r.URL.Query()
				if q.Get("features") != "caption,read" {
					t.Errorf("unexpected features %q", q.Get("features"))
				}
				if q.Get("gender-neutral-caption") != "true" {
					t.Errorf("expected gender neutral captions")
				}
				if r.Header.Get("Ocp-Apim-Subscription-Key") != "test-key" {
					t.Errorf("missing subscription key header")
				}
				if r.Header.Get("Content-Type") != "application/octet-stream" {
					t.Errorf("unexpected content type %s", r.Header.Get("Content-Type"))
				}
				body, _ := io.ReadAll(r.Body)
				if string(body) != string(image) {
					t.Errorf("image bytes were not forwarded unchanged")
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			client := NewAzureVisionClient(server.URL+"/", "test-key")
			analysis, err := client.Analyze(context.Background(), image)

			if tt.expectErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if analysis.Caption.Text == nil || *analysis.Caption.Text != tt.expectCaption {
				t.Errorf("expected caption %q, got %v", tt.expectCaption, analysis.Caption.Text)
			}
			if analysis.Caption.Confidence == nil || *analysis.Caption.Confidence != tt.expectConf {
				t.Errorf("expected confidence %v, got %v", tt.expectConf, analysis.Caption.Confidence)
			}
			if len(analysis.ReadText) != tt.expectReadLines {
				t.Errorf("expected %d read lines, got %d", tt.expectReadLines, len(analysis.ReadText))
			}
		})
	}
}

func TestAzureVisionClientErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error": {"code": "401", "message": "Access denied due to invalid subscription key."}}`)
	}))
	defer server.Close()

	client := NewAzureVisionClient(server.URL, "wrong-key")
	_, err := client.Analyze(context.Background(), []byte("img"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "invalid subscription key") {
		t.Errorf("expected provider detail in error, got %q", err.Error())
	}
}

func TestAzureVisionClientCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewAzureVisionClient(server.URL, "key")
	if _, err := client.Analyze(ctx, []byte("img")); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
