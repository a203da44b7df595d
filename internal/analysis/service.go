// Package analysis runs the deduplicated analyze protocol: fingerprint the
// upload, answer from the record store when possible, otherwise call the
// vision provider once and persist its result.
package analysis

import (
	"context"
	"errors"

	"github.com/kdimtricp/skysight/internal/ai"
	"github.com/kdimtricp/skysight/internal/database"
	"github.com/kdimtricp/skysight/internal/fingerprint"
	"github.com/kdimtricp/skysight/internal/logging"
	"github.com/kdimtricp/skysight/internal/models"
	"github.com/kdimtricp/skysight/internal/storage"
	"github.com/m-mizutani/goerr/v2"
)

// Store is the record persistence the protocol needs.
type Store interface {
	FindByFingerprint(ctx context.Context, fp string) (*models.AnalysisRecord, error)
	Insert(ctx context.Context, record *models.AnalysisRecord) error
	ListAll(ctx context.Context) ([]models.AnalysisRecord, error)
}

type Result struct {
	Fingerprint string
	Caption     models.Caption
	ReadText    []models.TextLine
	// Cached is true when the result came from the store without a provider call.
	Cached bool
}

type Service struct {
	store    Store
	provider ai.Provider
	archive  storage.Archive
}

type Option func(*Service)

// WithArchive stores the original bytes of every newly analyzed image.
func WithArchive(archive storage.Archive) Option {
	return func(s *Service) {
		s.archive = archive
	}
}

// NewService builds the protocol. provider may be nil; lookups of known
// images still succeed and misses fail with a provider error.
func NewService(store Store, provider ai.Provider, opts ...Option) *Service {
	s := &Service{
		store:    store,
		provider: provider,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze returns the caption for imageData. A fingerprint already on record
// never reaches the provider. On a miss the provider is called once and the
// fresh result is returned even if a concurrent request stored the same
// fingerprint first.
func (s *Service) Analyze(ctx context.Context, imageData []byte) (*Result, error) {
	fp := fingerprint.Of(imageData)
	logger := logging.From(ctx).With("fingerprint", fp)

	record, err := s.store.FindByFingerprint(ctx, fp)
	switch {
	case err == nil:
		lines, err := record.Lines()
		if err != nil {
			return nil, goerr.Wrap(err, "stored read text is corrupt", goerr.T(TagStorage), goerr.V("fingerprint", fp))
		}
		logger.Debug("analysis served from store", "record_id", record.ID)
		return &Result{
			Fingerprint: fp,
			Caption:     record.Caption(),
			ReadText:    lines,
			Cached:      true,
		}, nil

	case errors.Is(err, database.ErrNotFound):
		// fall through to the provider

	default:
		return nil, goerr.Wrap(err, "failed to look up analysis", goerr.T(TagStorage), goerr.V("fingerprint", fp))
	}

	if s.provider == nil {
		return nil, goerr.New("vision provider is not configured", goerr.T(TagProvider))
	}

	analysis, err := s.provider.Analyze(ctx, imageData)
	if err != nil {
		return nil, goerr.Wrap(err, "image analysis failed", goerr.T(TagProvider), goerr.V("fingerprint", fp))
	}

	newRecord, err := models.NewAnalysisRecord(fp, analysis.Caption, analysis.ReadText)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build record", goerr.T(TagProvider), goerr.V("fingerprint", fp))
	}

	result := &Result{
		Fingerprint: fp,
		Caption:     analysis.Caption,
		ReadText:    analysis.ReadText,
	}

	if err := s.store.Insert(ctx, newRecord); err != nil {
		if errors.Is(err, database.ErrDuplicateKey) {
			logger.Info("concurrent analysis already stored, returning fresh result")
			return result, nil
		}
		return nil, goerr.Wrap(err, "failed to store analysis", goerr.T(TagStorage), goerr.V("fingerprint", fp))
	}

	logger.Info("analysis stored", "record_id", newRecord.ID, "read_lines", len(analysis.ReadText))

	if s.archive != nil {
		if path, err := s.archive.Save(fp, imageData); err != nil {
			logger.Warn("failed to archive image", "error", err)
		} else {
			logger.Debug("image archived", "path", path)
		}
	}

	return result, nil
}

// ListAll returns every stored record in insertion order.
func (s *Service) ListAll(ctx context.Context) ([]models.AnalysisRecord, error) {
	records, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list analyses", goerr.T(TagStorage))
	}
	return records, nil
}
