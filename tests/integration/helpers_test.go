package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/kdimtricp/skysight/internal/ai"
	"github.com/kdimtricp/skysight/internal/analysis"
	"github.com/kdimtricp/skysight/internal/api"
	"github.com/kdimtricp/skysight/internal/database"
	"github.com/kdimtricp/skysight/internal/storage"
)

const failingImage = "provider should fail on this"

type TestServer struct {
	Server     *httptest.Server
	Vision     *httptest.Server
	App        *api.App
	DB         *database.DB
	Repo       *database.RecordRepository
	ArchiveDir string
	// VisionCalls counts requests that reached the fake vision endpoint.
	VisionCalls atomic.Int32
}

// fakeAzure answers like the Image Analysis API: the caption echoes the
// uploaded bytes and one OCR line is returned.
func (ts *TestServer) fakeAzure(w http.ResponseWriter, r *http.Request) {
	ts.VisionCalls.Add(1)

	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	if r.Header.Get("Ocp-Apim-Subscription-Key") != "test-key" {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"401","message":"Access denied due to invalid subscription key."}}`))
		return
	}
	if string(body) == failingImage {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"InvalidImageFormat","message":"Input data is not a valid image."}}`))
		return
	}

	resp := map[string]any{
		"modelVersion": "2023-10-01",
		"captionResult": map[string]any{
			"text":       "an image of " + string(body),
			"confidence": 0.75,
		},
		"readResult": map[string]any{
			"blocks": []any{
				map[string]any{
					"lines": []any{
						map[string]any{
							"text":            "HELLO",
							"boundingPolygon": []any{map[string]int{"x": 1, "y": 2}, map[string]int{"x": 9, "y": 2}},
						},
					},
				},
			},
		},
	}
	json.NewEncoder(w).Encode(resp)
}

func setupTestServer(t *testing.T) *TestServer {
	t.Helper()
	tempDir := t.TempDir()

	db, err := database.NewDB(database.Config{
		Type:       database.TypeSQLite,
		SQLitePath: filepath.Join(tempDir, "test.db"),
	})
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}

	archiveDir := filepath.Join(tempDir, "uploads")
	archive, err := storage.NewLocalStorage(archiveDir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ts := &TestServer{
		DB:         db,
		Repo:       database.NewRecordRepository(db),
		ArchiveDir: archiveDir,
	}
	ts.Vision = httptest.NewServer(http.HandlerFunc(ts.fakeAzure))

	provider := ai.NewAzureVisionClient(ts.Vision.URL, "test-key")
	ts.App = &api.App{
		Analysis:      analysis.NewService(ts.Repo, provider, analysis.WithArchive(archive)),
		MaxUploadSize: 10 * 1024 * 1024,
	}
	ts.Server = httptest.NewServer(api.NewRouter(ts.App))

	t.Cleanup(func() {
		ts.Server.Close()
		ts.Vision.Close()
		db.Close()
	})
	return ts
}

func createMultipartUpload(filename string, content []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(content)); err != nil {
		return nil, "", err
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return body, writer.FormDataContentType(), nil
}

func countRecordsInDB(t *testing.T, db *database.DB) int {
	t.Helper()
	var count int
	if err := db.Conn().QueryRow("SELECT COUNT(*) FROM image_analysis_results").Scan(&count); err != nil {
		t.Fatalf("Failed to count records: %v", err)
	}
	return count
}

func uploadTestImage(t *testing.T, server string, filename string, content []byte) *http.Response {
	t.Helper()

	body, contentType, err := createMultipartUpload(filename, content)
	if err != nil {
		t.Fatalf("Failed to create multipart upload: %v", err)
	}

	req, err := http.NewRequest("POST", fmt.Sprintf("%s/upload_and_analyze", server), body)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to upload image: %v", err)
	}

	return resp
}
