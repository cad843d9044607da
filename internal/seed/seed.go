// Package seed loads reference data into the document store.
package seed

import (
	"context"
	"errors"
	"log/slog"

	"energy-agent/internal/domain"
)

// Record is anything with a fixed id that maps to a document.
type Record interface {
	RecordID() string
	Document() domain.Document
}

// Writer is satisfied by *repository.Client.
type Writer interface {
	PutDocument(ctx context.Context, collection, id string, doc domain.Document) error
}

// Result summarises one collection run.
type Result struct {
	Collection string
	Written    int
	Failed     int
}

type Seeder struct {
	store  Writer
	logger *slog.Logger
}

func New(store Writer, logger *slog.Logger) (*Seeder, error) {
	if store == nil {
		return nil, errors.New("seed: store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{store: store, logger: logger}, nil
}

// Seed writes every record under its id, overwriting what is stored.
// Failures are logged and counted; the remaining records are still written.
func (s *Seeder) Seed(ctx context.Context, collection string, records []Record) Result {
	res := Result{Collection: collection}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			res.Failed += len(records) - res.Written - res.Failed
			s.logger.Error("seed: aborted", "collection", collection, "error", err)
			break
		}
		id := rec.RecordID()
		if err := s.store.PutDocument(ctx, collection, id, rec.Document()); err != nil {
			res.Failed++
			s.logger.Error("seed: write failed", "collection", collection, "id", id, "error", err)
			continue
		}
		res.Written++
		s.logger.Debug("seed: wrote record", "collection", collection, "id", id)
	}
	s.logger.Info("seed: collection done", "collection", collection, "written", res.Written, "failed", res.Failed)
	return res
}
