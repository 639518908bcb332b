package distribution

import (
	"errors"
	"fmt"
)

// ErrInvalidQuantity marks a line whose quantity should have been rejected upstream.
var ErrInvalidQuantity = errors.New("invalid quantity")

// Plan is the fixed configuration of one allocation pass.
type Plan struct {
	Warehouses     []int
	PriorityStores []int
	ExcludedStores []int
}

// Allocation is the raw output of Allocate, before messages and store names.
type Allocation struct {
	Warehouse []WarehouseLine
	Requests  []*StoreRequest
	Shortages []ShortageLine
}

type allocator struct {
	run        *Context
	warehouses map[int]bool
	excluded   map[int]bool
	priority   map[int]bool
	requests   map[int]*StoreRequest
	out        Allocation
}

// Allocate places every item of the ranked groups on a warehouse, on stores one unit at
// a time, or on the shortage list. Groups are visited in the given order.
func Allocate(groups []OrderGroup, plan Plan, run *Context) (Allocation, error) {
	if run == nil {
		return Allocation{}, errors.New("run context required")
	}
	a := &allocator{
		run:        run,
		warehouses: toSet(plan.Warehouses),
		excluded:   toSet(plan.ExcludedStores),
		priority:   toSet(plan.PriorityStores),
		requests:   make(map[int]*StoreRequest),
	}
	for _, g := range groups {
		for _, it := range g.Items {
			if err := a.place(g.ExternalOrderID, it); err != nil {
				return Allocation{}, err
			}
		}
	}
	return a.out, nil
}

func (a *allocator) place(orderID string, it Item) error {
	if it.Quantity <= 0 {
		return fmt.Errorf("%w: order %s sku %s has quantity %d", ErrInvalidQuantity, orderID, it.SKU, it.Quantity)
	}
	for _, id := range it.AvailableLocationIDs {
		if a.warehouses[id] {
			a.out.Warehouse = append(a.out.Warehouse, WarehouseLine{
				OrderID:           orderID,
				SKU:               it.SKU,
				ProductName:       it.ProductName,
				Quantity:          it.Quantity,
				Status:            StatusMainWarehouse,
				WarehouseID:       id,
				LocationCode:      it.LocationCode,
				AvailableStoreIDs: availability(it),
			})
			return nil
		}
	}

	var route, other []int
	seen := make(map[int]bool, len(it.AvailableLocationIDs))
	for _, id := range it.AvailableLocationIDs {
		if a.excluded[id] || seen[id] {
			continue
		}
		seen[id] = true
		if a.priority[id] {
			route = append(route, id)
		} else {
			other = append(other, id)
		}
	}

	remaining := it.Quantity
	remaining = a.roundRobin(orderID, it, route, remaining)
	remaining = a.roundRobin(orderID, it, other, remaining)
	if remaining > 0 {
		a.out.Shortages = append(a.out.Shortages, ShortageLine{
			OrderID:           orderID,
			SKU:               it.SKU,
			ProductName:       it.ProductName,
			Quantity:          it.Quantity,
			Status:            StatusInsufficient,
			MissingQuantity:   remaining,
			AvailableStoreIDs: availability(it),
		})
	}
	return nil
}

// roundRobin hands out single units from pool starting at the shared cursor and returns
// the quantity still unplaced. A store already used for the sku is skipped; once the sku
// has used as many stores as the pool holds the pool is considered exhausted.
func (a *allocator) roundRobin(orderID string, it Item, pool []int, remaining int) int {
	for remaining > 0 && len(pool) > 0 {
		storeID := pool[a.run.cursor%len(pool)]
		if a.run.isUsed(it.SKU, storeID) {
			a.run.advance()
			if a.run.UsedCount(it.SKU) >= len(pool) {
				break
			}
			continue
		}
		a.run.markUsed(it.SKU, storeID)
		req := a.request(storeID)
		req.Items = append(req.Items, RequestItem{
			OrderID:           orderID,
			SKU:               it.SKU,
			ProductName:       it.ProductName,
			Quantity:          1,
			AvailableStoreIDs: availability(it),
		})
		remaining--
		a.run.advance()
	}
	return remaining
}

func (a *allocator) request(storeID int) *StoreRequest {
	if req, ok := a.requests[storeID]; ok {
		return req
	}
	req := &StoreRequest{
		StoreID:   storeID,
		StoreName: PlaceholderName(storeID),
	}
	a.requests[storeID] = req
	a.out.Requests = append(a.out.Requests, req)
	return req
}

// PlaceholderName is the store name used until the directory supplies a real one.
func PlaceholderName(storeID int) string {
	return fmt.Sprintf("Store %d", storeID)
}

func availability(it Item) []int {
	if it.AvailableLocationIDs == nil {
		return []int{}
	}
	return it.AvailableLocationIDs
}

func toSet(ids []int) map[int]bool {
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
