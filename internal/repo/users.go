package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"stockroute/internal/domain"
)

const userColumns = `id,email,password_hash,COALESCE(name,''),role,created_at`

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

// InsertUser stores a user and returns it with its id. A duplicate email yields ErrConflict.
func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) (domain.User, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Email == "" {
		return u, errors.New("email required")
	}
	if u.PasswordHash == "" {
		return u, errors.New("password_hash required")
	}
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	if u.CreatedAt == "" {
		u.CreatedAt = now()
	}
	id, err := r.on(tx).insertID(ctx, `INSERT INTO users(email,password_hash,name,role,created_at) VALUES (?,?,?,?,?)`,
		u.Email, u.PasswordHash, nullable(u.Name), u.Role, u.CreatedAt)
	if isUniqueViolation(err) {
		return u, ErrConflict
	}
	if err != nil {
		return u, err
	}
	u.ID = id
	return u, nil
}

func (r Repo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return scanUser(r.on(nil).queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.on(nil).queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, strings.ToLower(strings.TrimSpace(email))))
}

// SetUserRole changes the role of a user.
func (r Repo) SetUserRole(ctx context.Context, id int64, role string) error {
	res, err := r.on(nil).exec(ctx, `UPDATE users SET role=? WHERE id=?`, role, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
