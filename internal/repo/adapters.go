package repo

import (
	"context"
	"errors"
	"time"

	"stockroute/internal/distribution"
)

// RouteResolver serves delivery routes to the distributor.
type RouteResolver struct {
	Repo Repo
}

func (r RouteResolver) RouteFor(ctx context.Context, day time.Weekday) (distribution.Route, bool, error) {
	rt, err := r.Repo.ActiveRouteForDay(ctx, int(day))
	if errors.Is(err, ErrNotFound) {
		return distribution.Route{}, false, nil
	}
	if err != nil {
		return distribution.Route{}, false, err
	}
	return distribution.Route{StoreIDsCSV: rt.Stores, Active: rt.IsActive}, true, nil
}

// StoreDirectory serves store names and manager phones to the distributor.
type StoreDirectory struct {
	Repo Repo
}

func (d StoreDirectory) LookupByIDs(ctx context.Context, ids []int) ([]distribution.StoreInfo, error) {
	stores, err := d.Repo.StoresByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]distribution.StoreInfo, 0, len(stores))
	for _, s := range stores {
		out = append(out, distribution.StoreInfo{ID: s.ID, Name: s.Name, Phone: s.ManagerPhone})
	}
	return out, nil
}
