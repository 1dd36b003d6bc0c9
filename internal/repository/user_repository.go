package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/agrotrack/plotmanager/internal/domain"
)

const userColumns = `id, username, email, password_hash, role, establishment_location,
	establishment_lat, establishment_lng, deleted, created_at, updated_at`

// PostgresUserRepository implements domain.UserRepository using PostgreSQL
type PostgresUserRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db *sql.DB, logger *slog.Logger) *PostgresUserRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresUserRepository{
		db:     db,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.EstablishmentLocation,
		&u.EstablishmentLat,
		&u.EstablishmentLng,
		&u.Deleted,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

// CreateWithProfile inserts the user and its profile in one transaction
func (r *PostgresUserRepository) CreateWithProfile(ctx context.Context, user *domain.User, profile *domain.Profile) (err error) {
	errb := oops.In("user_repository").With("username", user.Username)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errb.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role,
			establishment_location, establishment_lat, establishment_lng)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.EstablishmentLocation,
		user.EstablishmentLat,
		user.EstablishmentLng,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if dup := uniqueViolation(err); dup != nil {
			return dup
		}
		r.logger.ErrorContext(ctx, "failed to create user",
			slog.String("username", user.Username),
			slog.String("error", err.Error()),
		)
		return errb.Code("USER_INSERT_FAILED").Wrap(err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO profiles (id, user_id, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`,
		profile.ID,
		user.ID,
		profile.FirstName,
		profile.LastName,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return errb.Code("PROFILE_INSERT_FAILED").Wrap(err)
	}
	profile.UserID = user.ID

	if err = tx.Commit(); err != nil {
		return errb.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

// GetByID retrieves a non-deleted user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted = false`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, oops.In("user_repository").Code("USER_GET_FAILED").With("id", id).Wrap(err)
	}
	return user, nil
}

// GetByUsername retrieves a non-deleted user by username
func (r *PostgresUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1 AND deleted = false`, username)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, oops.In("user_repository").Code("USER_GET_FAILED").With("username", username).Wrap(err)
	}
	return user, nil
}

// ExistsUsername checks every row, deleted or not, except excludeID
func (r *PostgresUserRepository) ExistsUsername(ctx context.Context, username, excludeID string) (bool, error) {
	return r.exists(ctx, "username", username, excludeID)
}

// ExistsEmail checks every row, deleted or not, except excludeID
func (r *PostgresUserRepository) ExistsEmail(ctx context.Context, email, excludeID string) (bool, error) {
	return r.exists(ctx, "email", email, excludeID)
}

func (r *PostgresUserRepository) exists(ctx context.Context, column, value, excludeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE ` + column + ` = $1)`
	args := []any{value}
	if validID(excludeID) {
		query = `SELECT EXISTS (SELECT 1 FROM users WHERE ` + column + ` = $1 AND id <> $2)`
		args = append(args, excludeID)
	}
	var found bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&found); err != nil {
		return false, oops.In("user_repository").Code("USER_EXISTS_FAILED").With("column", column).Wrap(err)
	}
	return found, nil
}

// List returns all non-deleted users ordered by creation time
func (r *PostgresUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE deleted = false ORDER BY created_at, id`)
	if err != nil {
		return nil, oops.In("user_repository").Code("USER_LIST_FAILED").Wrap(err)
	}
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, oops.In("user_repository").Code("USER_SCAN_FAILED").Wrap(err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.In("user_repository").Code("USER_LIST_FAILED").Wrap(err)
	}
	return users, nil
}

// Update writes every mutable column of a non-deleted user
func (r *PostgresUserRepository) Update(ctx context.Context, user *domain.User) error {
	if !validID(user.ID) {
		return domain.ErrNotFound
	}
	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET username = $1, email = $2, password_hash = $3, role = $4,
			establishment_location = $5, establishment_lat = $6, establishment_lng = $7,
			updated_at = NOW()
		WHERE id = $8 AND deleted = false
		RETURNING updated_at
	`,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.EstablishmentLocation,
		user.EstablishmentLat,
		user.EstablishmentLng,
		user.ID,
	).Scan(&user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if dup := uniqueViolation(err); dup != nil {
			return dup
		}
		return oops.In("user_repository").Code("USER_UPDATE_FAILED").With("id", user.ID).Wrap(err)
	}
	return nil
}

// SoftDelete flags the user and its profile in one transaction
func (r *PostgresUserRepository) SoftDelete(ctx context.Context, id string) (err error) {
	if !validID(id) {
		return domain.ErrNotFound
	}
	errb := oops.In("user_repository").With("id", id)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errb.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET deleted = true, updated_at = NOW() WHERE id = $1 AND deleted = false`, id)
	if err != nil {
		return errb.Code("USER_DELETE_FAILED").Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errb.Code("USER_DELETE_FAILED").Wrap(err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE profiles SET deleted = true, updated_at = NOW() WHERE user_id = $1`, id); err != nil {
		return errb.Code("PROFILE_DELETE_FAILED").Wrap(err)
	}

	if err = tx.Commit(); err != nil {
		return errb.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

// PostgresProfileRepository implements domain.ProfileRepository
type PostgresProfileRepository struct {
	db *sql.DB
}

func NewPostgresProfileRepository(db *sql.DB) *PostgresProfileRepository {
	return &PostgresProfileRepository{db: db}
}

const liveProfilesQuery = `
	SELECT p.id, p.user_id, p.first_name, p.last_name, p.deleted, p.created_at, p.updated_at
	FROM profiles p
	JOIN users u ON u.id = p.user_id
	WHERE p.deleted = false AND u.deleted = false`

func scanProfile(row rowScanner) (*domain.Profile, error) {
	p := &domain.Profile{}
	err := row.Scan(&p.ID, &p.UserID, &p.FirstName, &p.LastName, &p.Deleted, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetByUserID returns the profile when both it and its user are live
func (r *PostgresProfileRepository) GetByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	if !validID(userID) {
		return nil, domain.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, liveProfilesQuery+` AND p.user_id = $1`, userID)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, oops.In("profile_repository").Code("PROFILE_GET_FAILED").With("user_id", userID).Wrap(err)
	}
	return p, nil
}

// List returns the profiles of every live user
func (r *PostgresProfileRepository) List(ctx context.Context) ([]*domain.Profile, error) {
	rows, err := r.db.QueryContext(ctx, liveProfilesQuery+` ORDER BY p.created_at, p.id`)
	if err != nil {
		return nil, oops.In("profile_repository").Code("PROFILE_LIST_FAILED").Wrap(err)
	}
	defer rows.Close()

	profiles := []*domain.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, oops.In("profile_repository").Code("PROFILE_SCAN_FAILED").Wrap(err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.In("profile_repository").Code("PROFILE_LIST_FAILED").Wrap(err)
	}
	return profiles, nil
}

func (r *PostgresProfileRepository) Update(ctx context.Context, profile *domain.Profile) error {
	if !validID(profile.ID) {
		return domain.ErrNotFound
	}
	err := r.db.QueryRowContext(ctx, `
		UPDATE profiles SET first_name = $1, last_name = $2, updated_at = NOW()
		WHERE id = $3 AND deleted = false
		RETURNING updated_at
	`, profile.FirstName, profile.LastName, profile.ID).Scan(&profile.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return oops.In("profile_repository").Code("PROFILE_UPDATE_FAILED").With("id", profile.ID).Wrap(err)
	}
	return nil
}
