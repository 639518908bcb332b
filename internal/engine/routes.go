package engine

import (
	"context"
	"strconv"
	"strings"

	"stockroute/internal/distribution"
	"stockroute/internal/domain"
	"stockroute/internal/events"
	"stockroute/internal/repo"
)

func validDay(day int) error {
	if day < 0 || day > 6 {
		return invalid("day of week must be 0-6, got %d", day)
	}
	return nil
}

func validStores(csv string) error {
	if strings.TrimSpace(csv) == "" {
		return invalid("stores must be a comma-separated string")
	}
	if len(distribution.ParseStoreIDs(csv)) == 0 {
		return invalid("stores %q contains no store ids", csv)
	}
	return nil
}

func (e Engine) ListRoutes(ctx context.Context) ([]domain.DeliveryRoute, error) {
	return e.Repo.ListRoutes(ctx)
}

// RouteForDay returns the active route of a weekday (0 = Sunday).
func (e Engine) RouteForDay(ctx context.Context, day int) (domain.DeliveryRoute, error) {
	if err := validDay(day); err != nil {
		return domain.DeliveryRoute{}, err
	}
	return e.Repo.ActiveRouteForDay(ctx, day)
}

func (e Engine) CreateRoute(ctx context.Context, actor string, day int, stores string) (domain.DeliveryRoute, error) {
	if err := validDay(day); err != nil {
		return domain.DeliveryRoute{}, err
	}
	if err := validStores(stores); err != nil {
		return domain.DeliveryRoute{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DeliveryRoute{}, err
	}
	defer tx.Rollback()
	ts := e.timestamp()
	rt, err := e.Repo.InsertRoute(ctx, tx, domain.DeliveryRoute{DayOfWeek: day, Stores: stores, IsActive: true, CreatedAt: ts, UpdatedAt: ts})
	if err != nil {
		return domain.DeliveryRoute{}, err
	}
	if err := e.events().Append(ctx, tx, events.TypeRouteCreated, "route", strconv.FormatInt(rt.ID, 10), actor,
		events.EventPayload{"dayOfWeek": day, "stores": stores}); err != nil {
		return domain.DeliveryRoute{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DeliveryRoute{}, err
	}
	return rt, nil
}

func (e Engine) UpdateRoute(ctx context.Context, actor string, id int64, u repo.RouteUpdate) (domain.DeliveryRoute, error) {
	payload := events.EventPayload{}
	if u.DayOfWeek != nil {
		if err := validDay(*u.DayOfWeek); err != nil {
			return domain.DeliveryRoute{}, err
		}
		payload["dayOfWeek"] = *u.DayOfWeek
	}
	if u.Stores != nil {
		if err := validStores(*u.Stores); err != nil {
			return domain.DeliveryRoute{}, err
		}
		payload["stores"] = *u.Stores
	}
	if u.IsActive != nil {
		payload["isActive"] = *u.IsActive
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DeliveryRoute{}, err
	}
	defer tx.Rollback()
	rt, err := e.Repo.UpdateRoute(ctx, tx, id, u)
	if err != nil {
		return domain.DeliveryRoute{}, err
	}
	if err := e.events().Append(ctx, tx, events.TypeRouteUpdated, "route", strconv.FormatInt(id, 10), actor, payload); err != nil {
		return domain.DeliveryRoute{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DeliveryRoute{}, err
	}
	return rt, nil
}

func (e Engine) DeleteRoute(ctx context.Context, actor string, id int64) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteRoute(ctx, tx, id); err != nil {
		return err
	}
	if err := e.events().Append(ctx, tx, events.TypeRouteDeleted, "route", strconv.FormatInt(id, 10), actor, nil); err != nil {
		return err
	}
	return tx.Commit()
}
