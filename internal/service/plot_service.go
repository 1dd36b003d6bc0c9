package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/agrotrack/plotmanager/internal/domain"
	"github.com/agrotrack/plotmanager/internal/observability/metrics"
	"github.com/agrotrack/plotmanager/internal/security"
	"github.com/agrotrack/plotmanager/internal/security/audit"
)

// PlotService owns plot lifecycle and enforces ownership
type PlotService struct {
	plots    domain.PlotRepository
	guard    *security.Guard
	statuses domain.StatusSet
	audit    *audit.Logger
	logger   *slog.Logger
}

func NewPlotService(
	plots domain.PlotRepository,
	guard *security.Guard,
	statuses domain.StatusSet,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *PlotService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlotService{
		plots:    plots,
		guard:    guard,
		statuses: statuses,
		audit:    auditLog,
		logger:   logger,
	}
}

// Create stores a plot owned by principal. Any owner supplied by the
// client never reaches this point.
func (s *PlotService) Create(ctx context.Context, principal *domain.User, in domain.NewPlot) (*domain.Plot, error) {
	plot, err := s.create(ctx, principal, in)
	metrics.ObservePlotOperation("create", err)
	return plot, err
}

func (s *PlotService) create(ctx context.Context, principal *domain.User, in domain.NewPlot) (*domain.Plot, error) {
	if err := s.guard.Require(principal, security.PermCreatePlot); err != nil {
		return nil, err
	}

	plot, err := in.Build(principal.ID, s.statuses)
	if err != nil {
		return nil, err
	}
	plot.ID = uuid.NewString()

	if err := s.plots.Create(ctx, plot); err != nil {
		s.logger.ErrorContext(ctx, "failed to create plot", slog.String("error", err.Error()))
		return nil, wrap(err, "plot_service", "PLOT_CREATE_FAILED", "owner_id", principal.ID)
	}

	plot.Owner = domain.OwnerOf(principal)

	s.audit.LogPlotChange(ctx, principal.ID, "create", plot.ID, "success")
	s.logger.InfoContext(ctx, "plot created",
		slog.String("plot_id", plot.ID),
		slog.String("owner_id", plot.OwnerID),
	)
	return plot, nil
}

// Get returns a plot visible to principal: its owner or an admin.
func (s *PlotService) Get(ctx context.Context, principal *domain.User, id string) (*domain.Plot, error) {
	if principal == nil {
		return nil, domain.ErrUnauthenticated
	}
	plot, err := s.plots.GetByID(ctx, id)
	if err != nil {
		return nil, wrap(err, "plot_service", "PLOT_GET_FAILED", "plot_id", id)
	}
	if err := s.guard.AuthorizePlotRead(principal, plot); err != nil {
		return nil, err
	}
	return plot, nil
}

// ListAll returns every active plot. Admin only.
func (s *PlotService) ListAll(ctx context.Context, principal *domain.User) ([]*domain.Plot, error) {
	if err := s.guard.Require(principal, security.PermListAllPlots); err != nil {
		return nil, err
	}
	plots, err := s.plots.List(ctx)
	if err != nil {
		return nil, wrap(err, "plot_service", "PLOT_LIST_FAILED")
	}
	return plots, nil
}

// ListMine returns principal's active plots
func (s *PlotService) ListMine(ctx context.Context, principal *domain.User) ([]*domain.Plot, error) {
	if err := s.guard.Require(principal, security.PermReadOwnPlots); err != nil {
		return nil, err
	}
	plots, err := s.plots.ListByOwner(ctx, principal.ID)
	if err != nil {
		return nil, wrap(err, "plot_service", "PLOT_LIST_FAILED", "owner_id", principal.ID)
	}
	return plots, nil
}

// Update merges patch into the stored plot. The order is fetch, authorize,
// merge, validate, persist.
func (s *PlotService) Update(ctx context.Context, principal *domain.User, id string, patch domain.PlotPatch) (*domain.Plot, error) {
	plot, err := s.update(ctx, principal, id, patch)
	metrics.ObservePlotOperation("update", err)
	return plot, err
}

func (s *PlotService) update(ctx context.Context, principal *domain.User, id string, patch domain.PlotPatch) (*domain.Plot, error) {
	if principal == nil {
		return nil, domain.ErrUnauthenticated
	}
	plot, err := s.plots.GetByID(ctx, id)
	if err != nil {
		return nil, wrap(err, "plot_service", "PLOT_GET_FAILED", "plot_id", id)
	}
	if err := s.guard.AuthorizePlotMutation(principal, plot); err != nil {
		s.audit.LogDenied(ctx, principal.ID, "plot", id, "not owner")
		return nil, err
	}

	if err := patch.Validate(); err != nil {
		return nil, err
	}
	patch.Apply(plot)
	if err := domain.ValidatePlot(plot, s.statuses); err != nil {
		return nil, err
	}

	if err := s.plots.Update(ctx, plot); err != nil {
		return nil, wrap(err, "plot_service", "PLOT_UPDATE_FAILED", "plot_id", id)
	}
	updated, err := s.plots.GetByID(ctx, id)
	if err != nil {
		return nil, wrap(err, "plot_service", "PLOT_GET_FAILED", "plot_id", id)
	}

	s.audit.LogPlotChange(ctx, principal.ID, "update", id, "success")
	return updated, nil
}

// SoftDelete hides a plot from every read path
func (s *PlotService) SoftDelete(ctx context.Context, principal *domain.User, id string) error {
	err := s.softDelete(ctx, principal, id)
	metrics.ObservePlotOperation("delete", err)
	return err
}

func (s *PlotService) softDelete(ctx context.Context, principal *domain.User, id string) error {
	if principal == nil {
		return domain.ErrUnauthenticated
	}
	plot, err := s.plots.GetByID(ctx, id)
	if err != nil {
		return wrap(err, "plot_service", "PLOT_GET_FAILED", "plot_id", id)
	}
	if err := s.guard.AuthorizePlotMutation(principal, plot); err != nil {
		s.audit.LogDenied(ctx, principal.ID, "plot", id, "not owner")
		return err
	}
	if err := s.plots.SoftDelete(ctx, id); err != nil {
		return wrap(err, "plot_service", "PLOT_DELETE_FAILED", "plot_id", id)
	}

	s.audit.LogPlotChange(ctx, principal.ID, "delete", id, "success")
	s.logger.InfoContext(ctx, "plot deleted", slog.String("plot_id", id))
	return nil
}
