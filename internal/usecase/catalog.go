package usecase

import (
	"context"
	"errors"

	"energy-agent/internal/domain"
)

type CatalogStore interface {
	ListDocuments(ctx context.Context, collection string) ([]domain.Document, error)
}

// CatalogService answers rebate and contractor lookups.
type CatalogService struct {
	store CatalogStore
}

func NewCatalogService(store CatalogStore) (*CatalogService, error) {
	if store == nil {
		return nil, errors.New("usecase: catalog store must not be nil")
	}
	return &CatalogService{store: store}, nil
}

// Rebates lists rebates available in region, including nation-wide ones.
func (s *CatalogService) Rebates(ctx context.Context, region string) ([]domain.Rebate, error) {
	docs, err := s.store.ListDocuments(ctx, domain.CollectionRebates)
	if err != nil {
		return nil, newError(ErrorDependencyUnavailable, "rebate_read_error", err)
	}
	out := make([]domain.Rebate, 0, len(docs))
	for _, d := range docs {
		r := domain.RebateFromDocument(d)
		if domain.MatchesRegion(r.Region, region) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *CatalogService) Contractors(ctx context.Context, region, service string) ([]domain.Contractor, error) {
	docs, err := s.store.ListDocuments(ctx, domain.CollectionContractors)
	if err != nil {
		return nil, newError(ErrorDependencyUnavailable, "contractor_read_error", err)
	}
	out := make([]domain.Contractor, 0, len(docs))
	for _, d := range docs {
		c := domain.ContractorFromDocument(d)
		if domain.MatchesRegion(c.Region, region) && c.OffersService(service) {
			out = append(out, c)
		}
	}
	return out, nil
}
