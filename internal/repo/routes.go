package repo

import (
	"context"
	"database/sql"
	"strings"

	"stockroute/internal/domain"
)

const routeColumns = `id,day_of_week,stores,is_active,created_at,updated_at`

func scanRoute(row rowScanner) (domain.DeliveryRoute, error) {
	var rt domain.DeliveryRoute
	err := row.Scan(&rt.ID, &rt.DayOfWeek, &rt.Stores, &rt.IsActive, &rt.CreatedAt, &rt.UpdatedAt)
	if err == sql.ErrNoRows {
		return rt, ErrNotFound
	}
	return rt, err
}

// ListRoutes returns all routes ordered by day of week.
func (r Repo) ListRoutes(ctx context.Context) ([]domain.DeliveryRoute, error) {
	rows, err := r.on(nil).query(ctx, `SELECT `+routeColumns+` FROM delivery_routes ORDER BY day_of_week ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DeliveryRoute
	for rows.Next() {
		rt, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rt)
	}
	return res, rows.Err()
}

// ActiveRouteForDay returns the first active route of a weekday (0 = Sunday).
func (r Repo) ActiveRouteForDay(ctx context.Context, day int) (domain.DeliveryRoute, error) {
	return scanRoute(r.on(nil).queryRow(ctx, `SELECT `+routeColumns+` FROM delivery_routes WHERE day_of_week=? AND is_active=? ORDER BY id ASC LIMIT 1`, day, true))
}

func (r Repo) GetRoute(ctx context.Context, id int64) (domain.DeliveryRoute, error) {
	return scanRoute(r.on(nil).queryRow(ctx, `SELECT `+routeColumns+` FROM delivery_routes WHERE id=?`, id))
}

func (r Repo) InsertRoute(ctx context.Context, tx *sql.Tx, rt domain.DeliveryRoute) (domain.DeliveryRoute, error) {
	ts := now()
	if rt.CreatedAt == "" {
		rt.CreatedAt = ts
	}
	if rt.UpdatedAt == "" {
		rt.UpdatedAt = rt.CreatedAt
	}
	id, err := r.on(tx).insertID(ctx, `INSERT INTO delivery_routes(day_of_week,stores,is_active,created_at,updated_at) VALUES (?,?,?,?,?)`,
		rt.DayOfWeek, rt.Stores, rt.IsActive, rt.CreatedAt, rt.UpdatedAt)
	if err != nil {
		return rt, err
	}
	rt.ID = id
	return rt, nil
}

type RouteUpdate struct {
	DayOfWeek *int
	Stores    *string
	IsActive  *bool
}

// UpdateRoute applies the set fields of u and returns the stored route.
func (r Repo) UpdateRoute(ctx context.Context, tx *sql.Tx, id int64, u RouteUpdate) (domain.DeliveryRoute, error) {
	sets := []string{"updated_at=?"}
	args := []any{now()}
	if u.DayOfWeek != nil {
		sets = append(sets, "day_of_week=?")
		args = append(args, *u.DayOfWeek)
	}
	if u.Stores != nil {
		sets = append(sets, "stores=?")
		args = append(args, *u.Stores)
	}
	if u.IsActive != nil {
		sets = append(sets, "is_active=?")
		args = append(args, *u.IsActive)
	}
	args = append(args, id)
	c := r.on(tx)
	res, err := c.exec(ctx, `UPDATE delivery_routes SET `+strings.Join(sets, ",")+` WHERE id=?`, args...)
	if err != nil {
		return domain.DeliveryRoute{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.DeliveryRoute{}, ErrNotFound
	}
	return scanRoute(c.queryRow(ctx, `SELECT `+routeColumns+` FROM delivery_routes WHERE id=?`, id))
}

func (r Repo) DeleteRoute(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := r.on(tx).exec(ctx, `DELETE FROM delivery_routes WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertRouteForDay replaces the stores of the first route of a day, creating it when
// the day has none. Used by seeding.
func (r Repo) UpsertRouteForDay(ctx context.Context, tx *sql.Tx, day int, stores string) (domain.DeliveryRoute, error) {
	c := r.on(tx)
	var id int64
	err := c.queryRow(ctx, `SELECT id FROM delivery_routes WHERE day_of_week=? ORDER BY id ASC LIMIT 1`, day).Scan(&id)
	if err == sql.ErrNoRows {
		return r.InsertRoute(ctx, tx, domain.DeliveryRoute{DayOfWeek: day, Stores: stores, IsActive: true})
	}
	if err != nil {
		return domain.DeliveryRoute{}, err
	}
	active := true
	return r.UpdateRoute(ctx, tx, id, RouteUpdate{Stores: &stores, IsActive: &active})
}
