package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"stockroute/internal/domain"
)

const storeColumns = `id,name,COALESCE(address,''),COALESCE(city,''),COALESCE(manager_name,''),COALESCE(manager_phone,''),is_main_warehouse,updated_at`

func scanStore(row rowScanner) (domain.Store, error) {
	var s domain.Store
	err := row.Scan(&s.ID, &s.Name, &s.Address, &s.City, &s.ManagerName, &s.ManagerPhone, &s.IsMainWarehouse, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

// UpsertStore inserts a store or replaces every field of an existing one.
func (r Repo) UpsertStore(ctx context.Context, tx *sql.Tx, s domain.Store) (domain.Store, error) {
	if s.ID <= 0 {
		return s, errors.New("store id must be positive")
	}
	if strings.TrimSpace(s.Name) == "" {
		return s, errors.New("store name required")
	}
	if s.UpdatedAt == "" {
		s.UpdatedAt = now()
	}
	_, err := r.on(tx).exec(ctx, `INSERT INTO stores(id,name,address,city,manager_name,manager_phone,is_main_warehouse,updated_at) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name,address=excluded.address,city=excluded.city,manager_name=excluded.manager_name,manager_phone=excluded.manager_phone,is_main_warehouse=excluded.is_main_warehouse,updated_at=excluded.updated_at`,
		s.ID, s.Name, nullable(s.Address), nullable(s.City), nullable(s.ManagerName), nullable(s.ManagerPhone), s.IsMainWarehouse, s.UpdatedAt)
	return s, err
}

func (r Repo) GetStore(ctx context.Context, id int) (domain.Store, error) {
	return scanStore(r.on(nil).queryRow(ctx, `SELECT `+storeColumns+` FROM stores WHERE id=?`, id))
}

// ListStores returns every store ordered by id.
func (r Repo) ListStores(ctx context.Context) ([]domain.Store, error) {
	return r.queryStores(ctx, `SELECT `+storeColumns+` FROM stores ORDER BY id ASC`)
}

// StoresByIDs returns the known stores among ids in one query; unknown ids are absent.
func (r Repo) StoresByIDs(ctx context.Context, ids []int) ([]domain.Store, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return r.queryStores(ctx, `SELECT `+storeColumns+` FROM stores WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id ASC`, args...)
}

func (r Repo) queryStores(ctx context.Context, query string, args ...any) ([]domain.Store, error) {
	rows, err := r.on(nil).query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Store
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
