package handler

import (
	"log/slog"
	"net/http"

	"github.com/agrotrack/plotmanager/internal/domain"
	"github.com/agrotrack/plotmanager/internal/security/middleware"
	"github.com/agrotrack/plotmanager/internal/service"
)

// PlotHandler serves the plot endpoints
type PlotHandler struct {
	plots  *service.PlotService
	logger *slog.Logger
}

// NewPlotHandler creates a new plot handler
func NewPlotHandler(plots *service.PlotService, logger *slog.Logger) *PlotHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlotHandler{plots: plots, logger: logger}
}

// Create handles POST and PUT /api/plots
func (h *PlotHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.NewPlot
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	plot, err := h.plots.Create(r.Context(), middleware.PrincipalFromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, plot)
}

// Get handles GET /api/plots/{id}
func (h *PlotHandler) Get(w http.ResponseWriter, r *http.Request) {
	plot, err := h.plots.Get(r.Context(), middleware.PrincipalFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, plot)
}

// ListAll handles GET /api/plots
func (h *PlotHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	plots, err := h.plots.ListAll(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, plots)
}

// ListMine handles GET /api/my-plots and GET /api/plots/me
func (h *PlotHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	plots, err := h.plots.ListMine(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, plots)
}

// Update handles PUT and PATCH /api/plots/{id}. Both verbs are partial.
func (h *PlotHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch domain.PlotPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	plot, err := h.plots.Update(r.Context(), middleware.PrincipalFromContext(r.Context()), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, plot)
}

// Delete handles DELETE /api/plots/{id}
func (h *PlotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.plots.SoftDelete(r.Context(), middleware.PrincipalFromContext(r.Context()), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "plot deleted", ID: id})
}
