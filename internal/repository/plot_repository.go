package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/agrotrack/plotmanager/internal/domain"
)

// plotSelect joins the owner so every read carries its summary. Deleted
// owners still appear: their plots outlive them.
const plotSelect = `SELECT p.id, p.owner_id, p.name, p.location_address, p.location_lat, p.location_lng,
	p.crop_type, p.lot_cost, p.area, p.status, p.sowing_date, p.expected_harvest_date,
	p.actual_harvest_date, p.damage_description, p.pests, p.humidity, p.deleted, p.created_at,
	p.updated_at, u.username, u.email
	FROM plots p
	JOIN users u ON u.id = p.owner_id`

// PostgresPlotRepository implements domain.PlotRepository using PostgreSQL
type PostgresPlotRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgresPlotRepository(db *sql.DB, logger *slog.Logger) *PostgresPlotRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresPlotRepository{db: db, logger: logger}
}

func scanPlot(row rowScanner) (*domain.Plot, error) {
	p := &domain.Plot{Owner: &domain.PlotOwner{}}
	err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.Name,
		&p.Location.Address,
		&p.Location.Lat,
		&p.Location.Lng,
		&p.CropType,
		&p.LotCost,
		&p.Area,
		&p.Status,
		&p.SowingDate,
		&p.ExpectedHarvestDate,
		&p.ActualHarvestDate,
		&p.DamageDescription,
		&p.Pests,
		&p.Humidity,
		&p.Deleted,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Owner.Username,
		&p.Owner.Email,
	)
	p.Owner.ID = p.OwnerID
	return p, err
}

func (r *PostgresPlotRepository) Create(ctx context.Context, plot *domain.Plot) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO plots (id, owner_id, name, location_address, location_lat, location_lng,
			crop_type, lot_cost, area, status, sowing_date, expected_harvest_date,
			actual_harvest_date, damage_description, pests, humidity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at
	`,
		plot.ID,
		plot.OwnerID,
		plot.Name,
		plot.Location.Address,
		plot.Location.Lat,
		plot.Location.Lng,
		plot.CropType,
		plot.LotCost,
		plot.Area,
		plot.Status,
		plot.SowingDate,
		plot.ExpectedHarvestDate,
		plot.ActualHarvestDate,
		plot.DamageDescription,
		plot.Pests,
		plot.Humidity,
	).Scan(&plot.CreatedAt, &plot.UpdatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to create plot",
			slog.String("owner_id", plot.OwnerID),
			slog.String("error", err.Error()),
		)
		return oops.In("plot_repository").Code("PLOT_INSERT_FAILED").With("owner_id", plot.OwnerID).Wrap(err)
	}
	return nil
}

// GetByID retrieves a non-deleted plot
func (r *PostgresPlotRepository) GetByID(ctx context.Context, id string) (*domain.Plot, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, plotSelect+` WHERE p.id = $1 AND p.deleted = false`, id)
	plot, err := scanPlot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, oops.In("plot_repository").Code("PLOT_GET_FAILED").With("id", id).Wrap(err)
	}
	return plot, nil
}

// List returns every non-deleted plot
func (r *PostgresPlotRepository) List(ctx context.Context) ([]*domain.Plot, error) {
	return r.query(ctx, plotSelect+` WHERE p.deleted = false ORDER BY p.created_at, p.id`)
}

// ListByOwner returns the non-deleted plots of one owner
func (r *PostgresPlotRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Plot, error) {
	if !validID(ownerID) {
		return []*domain.Plot{}, nil
	}
	return r.query(ctx, plotSelect+` WHERE p.owner_id = $1 AND p.deleted = false ORDER BY p.created_at, p.id`, ownerID)
}

func (r *PostgresPlotRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Plot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, oops.In("plot_repository").Code("PLOT_LIST_FAILED").Wrap(err)
	}
	defer rows.Close()

	plots := []*domain.Plot{}
	for rows.Next() {
		p, err := scanPlot(rows)
		if err != nil {
			return nil, oops.In("plot_repository").Code("PLOT_SCAN_FAILED").Wrap(err)
		}
		plots = append(plots, p)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.In("plot_repository").Code("PLOT_LIST_FAILED").Wrap(err)
	}
	return plots, nil
}

// Update writes every column except owner_id, which never changes
func (r *PostgresPlotRepository) Update(ctx context.Context, plot *domain.Plot) error {
	if !validID(plot.ID) {
		return domain.ErrNotFound
	}
	err := r.db.QueryRowContext(ctx, `
		UPDATE plots
		SET name = $1, location_address = $2, location_lat = $3, location_lng = $4,
			crop_type = $5, lot_cost = $6, area = $7, status = $8, sowing_date = $9,
			expected_harvest_date = $10, actual_harvest_date = $11, damage_description = $12,
			pests = $13, humidity = $14, updated_at = NOW()
		WHERE id = $15 AND deleted = false
		RETURNING updated_at
	`,
		plot.Name,
		plot.Location.Address,
		plot.Location.Lat,
		plot.Location.Lng,
		plot.CropType,
		plot.LotCost,
		plot.Area,
		plot.Status,
		plot.SowingDate,
		plot.ExpectedHarvestDate,
		plot.ActualHarvestDate,
		plot.DamageDescription,
		plot.Pests,
		plot.Humidity,
		plot.ID,
	).Scan(&plot.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return oops.In("plot_repository").Code("PLOT_UPDATE_FAILED").With("id", plot.ID).Wrap(err)
	}
	return nil
}

// SoftDelete flags a live plot as deleted
func (r *PostgresPlotRepository) SoftDelete(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE plots SET deleted = true, updated_at = NOW() WHERE id = $1 AND deleted = false`, id)
	if err != nil {
		return oops.In("plot_repository").Code("PLOT_DELETE_FAILED").With("id", id).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.In("plot_repository").Code("PLOT_DELETE_FAILED").With("id", id).Wrap(err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
