package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/contratos-api/internal/domain/entity"
	"github.com/jhoicas/contratos-api/internal/domain/repository"
)

var _ repository.UserRepository = (*UserRepo)(nil)

// userSelect resuelve perfil y permisos en una sola consulta (array_agg de profile_permissions).
const userSelect = `
	SELECT u.id, u.username, u.email, u.name, u.password_hash, u.sector_id, u.active,
	       u.created_at, u.updated_at,
	       COALESCE(p.is_admin, false),
	       COALESCE(array_agg(pp.permission) FILTER (WHERE pp.permission IS NOT NULL), '{}')
	FROM users u
	LEFT JOIN profiles p ON p.id = u.profile_id
	LEFT JOIN profile_permissions pp ON pp.profile_id = p.id`

// UserRepo implementación del puerto UserRepository sobre PostgreSQL.
type UserRepo struct {
	pool *pgxpool.Pool
}

// NewUserRepository construye el adaptador de persistencia para usuarios.
func NewUserRepository(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// FindByID obtiene un usuario por ID. (nil, nil) si no existe.
func (r *UserRepo) FindByID(ctx context.Context, id string) (*entity.User, error) {
	query := userSelect + `
	WHERE u.id::text = $1
	GROUP BY u.id, p.is_admin`
	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// FindByUsername obtiene un usuario por username (sin distinguir mayúsculas). (nil, nil) si no existe.
func (r *UserRepo) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	query := userSelect + `
	WHERE lower(u.username) = lower($1)
	GROUP BY u.id, p.is_admin`
	u, err := scanUser(r.pool.QueryRow(ctx, query, username))
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

// ListActiveByCapability usuarios activos admin o con la capacidad en su perfil.
func (r *UserRepo) ListActiveByCapability(ctx context.Context, capability string) ([]*entity.User, error) {
	query := userSelect + `
	WHERE u.active
	GROUP BY u.id, p.is_admin
	HAVING COALESCE(p.is_admin, false) OR COALESCE(bool_or(pp.permission = $1), false)
	ORDER BY u.username`
	rows, err := r.pool.Query(ctx, query, capability)
	if err != nil {
		return nil, fmt.Errorf("list users by capability: %w", err)
	}
	defer rows.Close()

	var list []*entity.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

func scanUser(row pgx.Row) (*entity.User, error) {
	var u entity.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.Name, &u.PasswordHash, &u.SectorID, &u.Active,
		&u.CreatedAt, &u.UpdatedAt, &u.IsAdmin, &u.Capabilities,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
