package engine

import (
	"context"
	"strconv"
	"strings"

	"stockroute/internal/domain"
	"stockroute/internal/events"
)

func (e Engine) ListStores(ctx context.Context) ([]domain.Store, error) {
	return e.Repo.ListStores(ctx)
}

// UpsertStore creates or replaces a store record.
func (e Engine) UpsertStore(ctx context.Context, actor string, s domain.Store) (domain.Store, error) {
	if s.ID <= 0 {
		return domain.Store{}, invalid("store id must be positive")
	}
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return domain.Store{}, invalid("store name is required")
	}
	s.UpdatedAt = e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Store{}, err
	}
	defer tx.Rollback()
	s, err = e.Repo.UpsertStore(ctx, tx, s)
	if err != nil {
		return domain.Store{}, err
	}
	if err := e.events().Append(ctx, tx, events.TypeStoreUpserted, "store", strconv.Itoa(s.ID), actor,
		events.EventPayload{"name": s.Name, "isMainWarehouse": s.IsMainWarehouse}); err != nil {
		return domain.Store{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Store{}, err
	}
	return s, nil
}

type SeedReport struct {
	Stores int `json:"stores"`
	Routes int `json:"routes"`
}

// Seed loads the stores and routes of the config seed section. Running it again
// refreshes the same records.
func (e Engine) Seed(ctx context.Context) (SeedReport, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return SeedReport{}, err
	}
	defer tx.Rollback()
	ts := e.timestamp()
	var rep SeedReport
	for _, s := range e.Config.Seed.Stores {
		if _, err := e.Repo.UpsertStore(ctx, tx, domain.Store{
			ID:              s.ID,
			Name:            s.Name,
			Address:         s.Address,
			City:            s.City,
			ManagerName:     s.ManagerName,
			ManagerPhone:    s.ManagerPhone,
			IsMainWarehouse: s.MainWarehouse,
			UpdatedAt:       ts,
		}); err != nil {
			return SeedReport{}, err
		}
		rep.Stores++
	}
	for _, r := range e.Config.Seed.Routes {
		if _, err := e.Repo.UpsertRouteForDay(ctx, tx, r.DayOfWeek, r.Stores); err != nil {
			return SeedReport{}, err
		}
		rep.Routes++
	}
	if err := tx.Commit(); err != nil {
		return SeedReport{}, err
	}
	e.logger().Printf("seed: %d stores, %d routes", rep.Stores, rep.Routes)
	return rep, nil
}
