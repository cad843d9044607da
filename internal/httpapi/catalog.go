package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"energy-agent/internal/domain"
)

type CatalogUseCase interface {
	Rebates(ctx context.Context, region string) ([]domain.Rebate, error)
	Contractors(ctx context.Context, region, service string) ([]domain.Contractor, error)
}

type rebatesResponse struct {
	Rebates []domain.Rebate `json:"rebates"`
}

type contractorsResponse struct {
	Contractors []domain.Contractor `json:"contractors"`
}

type catalogHandler struct {
	uc     CatalogUseCase
	logger *slog.Logger
}

// GET /rebates?region=QLD
func (h *catalogHandler) rebates(w http.ResponseWriter, r *http.Request) {
	rebates, err := h.uc.Rebates(r.Context(), r.URL.Query().Get("region"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rebatesResponse{Rebates: rebates})
}

// GET /contractors?region=QLD&service=solar
func (h *catalogHandler) contractors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	contractors, err := h.uc.Contractors(r.Context(), q.Get("region"), q.Get("service"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, contractorsResponse{Contractors: contractors})
}
