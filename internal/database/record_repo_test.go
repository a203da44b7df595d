package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kdimtricp/skysight/internal/fingerprint"
	"github.com/kdimtricp/skysight/internal/models"
)

func setupSQLiteDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(Config{
		Type:       TypeSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "records.db"),
	})
	if err != nil {
		t.Fatalf("Failed to open sqlite database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newRecord(t *testing.T, content, caption string, confidence float64) *models.AnalysisRecord {
	t.Helper()

	record, err := models.NewAnalysisRecord(
		fingerprint.Of([]byte(content)),
		models.Caption{Text: &caption, Confidence: &confidence},
		nil,
	)
	if err != nil {
		t.Fatalf("Failed to build record: %v", err)
	}
	return record
}

// repoSuite runs against every backend the tests can reach.
var repoSuite = []struct {
	name string
	run  func(t *testing.T, repo *RecordRepository)
}{
	{"InsertAndFind", testInsertAndFind},
	{"NotFound", testNotFound},
	{"DuplicateKey", testDuplicateKey},
	{"ListAllOrder", testListAllOrder},
	{"ReadTextRoundTrip", testReadTextRoundTrip},
	{"ConcurrentInsert", testConcurrentInsert},
}

func TestRecordRepository_SQLite(t *testing.T) {
	for _, tc := range repoSuite {
		t.Run(tc.name, func(t *testing.T) {
			tc.run(t, NewRecordRepository(setupSQLiteDB(t)))
		})
	}
}

func testInsertAndFind(t *testing.T, repo *RecordRepository) {
	ctx := context.Background()
	record := newRecord(t, "cat.png", "a cat", 0.87)

	if err := repo.Insert(ctx, record); err != nil {
		t.Fatalf("Failed to insert record: %v", err)
	}
	if record.ID == 0 {
		t.Error("Expected ID to be set after insert")
	}

	found, err := repo.FindByFingerprint(ctx, record.ImageFingerprint)
	if err != nil {
		t.Fatalf("Failed to find record: %v", err)
	}
	if found.ID != record.ID {
		t.Errorf("Expected id %d, got %d", record.ID, found.ID)
	}
	if found.CaptionText == nil || *found.CaptionText != "a cat" {
		t.Errorf("Unexpected caption text: %v", found.CaptionText)
	}
	if found.CaptionConfidence == nil || *found.CaptionConfidence != 0.87 {
		t.Errorf("Unexpected caption confidence: %v", found.CaptionConfidence)
	}
}

func testNotFound(t *testing.T, repo *RecordRepository) {
	ctx := context.Background()

	_, err := repo.FindByFingerprint(ctx, fingerprint.Of([]byte("never stored")))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	_, err = repo.FindByFingerprint(ctx, "not-a-fingerprint")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a malformed fingerprint, got %v", err)
	}
}

func testDuplicateKey(t *testing.T, repo *RecordRepository) {
	ctx := context.Background()

	if err := repo.Insert(ctx, newRecord(t, "same", "first", 0.5)); err != nil {
		t.Fatalf("Failed to insert first record: %v", err)
	}

	second := newRecord(t, "same", "second", 0.6)
	err := repo.Insert(ctx, second)
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}
	if second.ID != 0 {
		t.Errorf("Rejected record must not keep an id, got %d", second.ID)
	}

	found, err := repo.FindByFingerprint(ctx, second.ImageFingerprint)
	if err != nil {
		t.Fatalf("Failed to find record: %v", err)
	}
	if *found.CaptionText != "first" {
		t.Errorf("Stored record was overwritten: %s", *found.CaptionText)
	}
}

func testListAllOrder(t *testing.T, repo *RecordRepository) {
	ctx := context.Background()

	records, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("Failed to list empty store: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Fatalf("Expected an empty non-nil list, got %v", records)
	}

	const n = 5
	for i := 0; i < n; i++ {
		if err := repo.Insert(ctx, newRecord(t, fmt.Sprintf("image-%d", i), fmt.Sprintf("caption %d", i), 0.1*float64(i))); err != nil {
			t.Fatalf("Failed to insert record %d: %v", i, err)
		}
	}

	records, err = repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("Failed to list records: %v", err)
	}
	if len(records) != n {
		t.Fatalf("Expected %d records, got %d", n, len(records))
	}
	for i, record := range records {
		if want := fmt.Sprintf("caption %d", i); *record.CaptionText != want {
			t.Errorf("Record %d: expected %q, got %q", i, want, *record.CaptionText)
		}
		if i > 0 && record.ID <= records[i-1].ID {
			t.Errorf("Records out of id order at %d", i)
		}
	}
}

func testReadTextRoundTrip(t *testing.T, repo *RecordRepository) {
	ctx := context.Background()
	caption := "a street sign"
	lines := []models.TextLine{
		{Text: "STOP", BoundingBox: []models.Point{{X: 1, Y: 2}, {X: 30, Y: 2}, {X: 30, Y: 12}, {X: 1, Y: 12}}},
	}

	record, err := models.NewAnalysisRecord(fingerprint.Of([]byte("sign")), models.Caption{Text: &caption}, lines)
	if err != nil {
		t.Fatalf("Failed to build record: %v", err)
	}
	if err := repo.Insert(ctx, record); err != nil {
		t.Fatalf("Failed to insert record: %v", err)
	}

	found, err := repo.FindByFingerprint(ctx, record.ImageFingerprint)
	if err != nil {
		t.Fatalf("Failed to find record: %v", err)
	}
	if found.CaptionConfidence != nil {
		t.Errorf("Expected NULL confidence, got %v", *found.CaptionConfidence)
	}

	got, err := found.Lines()
	if err != nil {
		t.Fatalf("Failed to decode lines: %v", err)
	}
	if len(got) != 1 || got[0].Text != "STOP" || len(got[0].BoundingBox) != 4 {
		t.Errorf("Unexpected lines: %+v", got)
	}
}

func testConcurrentInsert(t *testing.T, repo *RecordRepository) {
	ctx := context.Background()
	const workers = 8

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		inserted   int
		duplicates int
	)
	records := make([]*models.AnalysisRecord, workers)
	for i := range records {
		records[i] = newRecord(t, "raced", "a race", 0.9)
	}

	for _, record := range records {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Insert(ctx, record)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				inserted++
			case errors.Is(err, ErrDuplicateKey):
				duplicates++
			default:
				t.Errorf("Unexpected insert error: %v", err)
			}
		}()
	}
	wg.Wait()

	if inserted != 1 || duplicates != workers-1 {
		t.Errorf("Expected 1 insert and %d duplicates, got %d and %d", workers-1, inserted, duplicates)
	}

	stored, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("Failed to list records: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("Expected one stored record, got %d", len(stored))
	}
}

func TestInsertRejectsInvalidRecords(t *testing.T) {
	repo := NewRecordRepository(setupSQLiteDB(t))
	ctx := context.Background()

	withID := newRecord(t, "has id", "x", 0.1)
	withID.ID = 42
	if err := repo.Insert(ctx, withID); err == nil {
		t.Error("Expected an error for a record with a preset id")
	}

	badFP := newRecord(t, "bad", "x", 0.1)
	badFP.ImageFingerprint = "ABC"
	if err := repo.Insert(ctx, badFP); err == nil {
		t.Error("Expected an error for an invalid fingerprint")
	}
}
