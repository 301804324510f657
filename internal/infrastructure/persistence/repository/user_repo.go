package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/pm-approval/internal/application/port"
	"github.com/garyjia/pm-approval/internal/domain/entity"
	"github.com/garyjia/pm-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const userColumns = `u.id, u.username, u.real_name, u.lark_open_id, u.is_superuser, u.is_active`

// UserRepository implements port.UserDirectory over the users and roles tables
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) port.UserDirectory {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.id = ?`, id)
	return scanUser(row)
}

// HasRole reports whether the user holds the role code
func (r *UserRepository) HasRole(ctx context.Context, userID int64, roleCode string) (bool, error) {
	var n int
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = ? AND ro.role_code = ?
	`, userID, roleCode).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return n > 0, nil
}

// FirstActiveWithRole returns the lowest-id active user holding the role
func (r *UserRepository) FirstActiveWithRole(ctx context.Context, roleCode string) (*entity.User, error) {
	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ro.role_code = ? AND u.is_active = 1
		ORDER BY u.id ASC
		LIMIT 1
	`, roleCode)
	return scanUser(row)
}

func scanUser(row rowScanner) (*entity.User, error) {
	var user entity.User
	var openID sql.NullString

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.RealName,
		&openID,
		&user.IsSuperuser,
		&user.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.LarkOpenID = openID.String
	return &user, nil
}
