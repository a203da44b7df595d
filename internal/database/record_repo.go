package database

import (
	"context"
	"errors"

	"github.com/kdimtricp/skysight/internal/fingerprint"
	"github.com/kdimtricp/skysight/internal/models"
	"github.com/m-mizutani/goerr/v2"
	"gorm.io/gorm"
)

type RecordRepository struct {
	db *DB
}

func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// FindByFingerprint returns the record stored under fp, or ErrNotFound.
func (r *RecordRepository) FindByFingerprint(ctx context.Context, fp string) (*models.AnalysisRecord, error) {
	if !fingerprint.Valid(fp) {
		return nil, goerr.Wrap(ErrNotFound, "malformed fingerprint", goerr.V("fingerprint", fp))
	}

	var record models.AnalysisRecord
	result := r.db.GORM().WithContext(ctx).
		Where("image_fingerprint = ?", fp).
		Take(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, goerr.Wrap(ErrNotFound, "no record for fingerprint", goerr.V("fingerprint", fp))
		}
		return nil, goerr.Wrap(result.Error, "failed to find record", goerr.V("fingerprint", fp))
	}
	return &record, nil
}

// Insert appends record in a single statement. The unique index on
// image_fingerprint rejects a second row for the same image with
// ErrDuplicateKey, regardless of what the caller checked beforehand.
func (r *RecordRepository) Insert(ctx context.Context, record *models.AnalysisRecord) error {
	if record.ID != 0 {
		return goerr.New("record already has an id", goerr.V("id", record.ID))
	}
	if !fingerprint.Valid(record.ImageFingerprint) {
		return goerr.New("invalid fingerprint", goerr.V("fingerprint", record.ImageFingerprint))
	}

	result := r.db.GORM().WithContext(ctx).Create(record)
	if result.Error != nil {
		record.ID = 0
		if isDuplicateKey(result.Error) {
			return goerr.Wrap(ErrDuplicateKey, "record already exists", goerr.V("fingerprint", record.ImageFingerprint))
		}
		return goerr.Wrap(result.Error, "failed to insert record", goerr.V("fingerprint", record.ImageFingerprint))
	}
	return nil
}

// ListAll returns every record in insertion order.
func (r *RecordRepository) ListAll(ctx context.Context) ([]models.AnalysisRecord, error) {
	records := []models.AnalysisRecord{}
	result := r.db.GORM().WithContext(ctx).Order("id ASC").Find(&records)
	if result.Error != nil {
		return nil, goerr.Wrap(result.Error, "failed to list records")
	}
	return records, nil
}
