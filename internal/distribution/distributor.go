package distribution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"
)

var (
	ErrRouteLookup     = errors.New("route lookup failed")
	ErrDirectoryLookup = errors.New("store directory lookup failed")
)

// Route is the delivery route stored for a day of the week.
type Route struct {
	StoreIDsCSV string
	Active      bool
}

// RouteResolver supplies the route for a weekday. ok is false when none exists.
type RouteResolver interface {
	RouteFor(ctx context.Context, day time.Weekday) (route Route, ok bool, err error)
}

// StoreInfo is what the directory knows about a store.
type StoreInfo struct {
	ID    int
	Name  string
	Phone string
}

// StoreDirectory resolves store ids in one batch; unknown ids are simply absent.
type StoreDirectory interface {
	LookupByIDs(ctx context.Context, ids []int) ([]StoreInfo, error)
}

// Request is the input of one distribution run.
type Request struct {
	Lines            []OrderLine
	DeliveryDate     *time.Time
	ExcludedStoreIDs []int
}

// Distributor wires the allocation pass to its collaborators.
type Distributor struct {
	Routes     RouteResolver
	Directory  StoreDirectory
	Warehouses []int
	Composer   Composer
	Logger     *log.Logger

	// KeepPlaceholdersOnLookupError returns the result with "Store {id}" names when the
	// directory lookup fails instead of failing the run. The failure is logged.
	KeepPlaceholdersOnLookupError bool
}

func (d Distributor) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

func (d Distributor) composer() Composer {
	if d.Composer.Greeting == "" && d.Composer.Closing == "" {
		return DefaultComposer()
	}
	return d.Composer
}

// Distribute runs a complete pass over req. Every call uses its own run context, so
// concurrent calls never share state.
func (d Distributor) Distribute(ctx context.Context, req Request) (Result, error) {
	logger := d.logger()
	priority, err := d.priorityStores(ctx, req.DeliveryDate)
	if err != nil {
		return Result{}, err
	}

	groups := GroupLines(req.Lines)
	Rank(groups)
	alloc, err := Allocate(groups, Plan{
		Warehouses:     d.Warehouses,
		PriorityStores: priority,
		ExcludedStores: req.ExcludedStoreIDs,
	}, NewContext())
	if err != nil {
		return Result{}, err
	}

	composer := d.composer()
	for _, r := range alloc.Requests {
		r.MessageText = composer.Compose(r.Items)
	}
	if err := d.enrich(ctx, alloc.Requests); err != nil {
		if !d.KeepPlaceholdersOnLookupError {
			return Result{}, err
		}
		logger.Printf("distribution: keeping placeholder store names: %v", err)
	}

	res := Assemble(alloc)
	s := res.Summary()
	logger.Printf("distribution: %d lines in %d orders -> warehouse=%d stores=%d (units=%d) insufficient=%d (missing=%d)",
		len(req.Lines), len(groups), s.MainWarehouse, s.StoreRequests, s.StoreUnits, s.Insufficient, s.MissingUnits)
	return res, nil
}

func (d Distributor) priorityStores(ctx context.Context, date *time.Time) ([]int, error) {
	if date == nil || d.Routes == nil {
		return nil, nil
	}
	day := date.Weekday()
	route, ok, err := d.Routes.RouteFor(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("%w for day %d: %v", ErrRouteLookup, int(day), err)
	}
	if !ok || !route.Active {
		d.logger().Printf("distribution: no route for day %d", int(day))
		return nil, nil
	}
	ids := ParseStoreIDs(route.StoreIDsCSV)
	d.logger().Printf("distribution: route for day %d: %v", int(day), ids)
	return ids, nil
}

func (d Distributor) enrich(ctx context.Context, requests []*StoreRequest) error {
	if d.Directory == nil || len(requests) == 0 {
		return nil
	}
	byID := make(map[int]*StoreRequest, len(requests))
	ids := make([]int, 0, len(requests))
	for _, r := range requests {
		if _, ok := byID[r.StoreID]; ok {
			continue
		}
		byID[r.StoreID] = r
		ids = append(ids, r.StoreID)
	}
	stores, err := d.Directory.LookupByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDirectoryLookup, err)
	}
	for _, s := range stores {
		r, ok := byID[s.ID]
		if !ok {
			continue
		}
		r.StoreName = s.Name
		r.ManagerPhone = s.Phone
	}
	return nil
}

// Assemble packages an allocation: warehouse and shortage lines keep processing order,
// store requests are sorted by store id.
func Assemble(alloc Allocation) Result {
	res := EmptyResult()
	res.MainWarehouse = append(res.MainWarehouse, alloc.Warehouse...)
	res.Insufficient = append(res.Insufficient, alloc.Shortages...)
	for _, r := range alloc.Requests {
		res.StoreRequests = append(res.StoreRequests, *r)
	}
	sort.SliceStable(res.StoreRequests, func(i, j int) bool {
		return res.StoreRequests[i].StoreID < res.StoreRequests[j].StoreID
	})
	return res
}
