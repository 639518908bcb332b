package distribution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoutes struct {
	routes map[time.Weekday]Route
	err    error
	calls  []time.Weekday
}

func (f *fakeRoutes) RouteFor(_ context.Context, day time.Weekday) (Route, bool, error) {
	f.calls = append(f.calls, day)
	if f.err != nil {
		return Route{}, false, f.err
	}
	r, ok := f.routes[day]
	return r, ok, nil
}

type fakeDirectory struct {
	mu     sync.Mutex
	stores map[int]StoreInfo
	err    error
	calls  [][]int
}

func (f *fakeDirectory) LookupByIDs(_ context.Context, ids []int) ([]StoreInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ids)
	if f.err != nil {
		return nil, f.err
	}
	var out []StoreInfo
	for _, id := range ids {
		if s, ok := f.stores[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func quietLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

func sampleLines() []OrderLine {
	return []OrderLine{
		{ExternalOrderID: "1001", SKU: "BOOT", ProductName: "Boot", Quantity: 2, AvailableLocationIDs: []int{5, 6, 23}, OrderDate: day(2)},
		{ExternalOrderID: "1002", SKU: "BAG", ProductName: "Bag", Quantity: 1, AvailableLocationIDs: []int{1, 5}, OrderDate: day(1), LocationCode: "B7"},
		{ExternalOrderID: "1003", SKU: "HAT", ProductName: "Hat", Quantity: 1, AvailableLocationIDs: nil, OrderDate: day(1)},
	}
}

func TestDistributeEndToEnd(t *testing.T) {
	sunday := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	routes := &fakeRoutes{routes: map[time.Weekday]Route{
		time.Sunday: {StoreIDsCSV: "23, 20, 26", Active: true},
	}}
	dir := &fakeDirectory{stores: map[int]StoreInfo{
		23: {ID: 23, Name: "TLV", Phone: "050-1"},
	}}
	d := Distributor{Routes: routes, Directory: dir, Warehouses: testWarehouses, Logger: quietLogger()}

	res, err := d.Distribute(context.Background(), Request{Lines: sampleLines(), DeliveryDate: &sunday})
	require.NoError(t, err)

	assert.Equal(t, []time.Weekday{time.Sunday}, routes.calls)
	require.Len(t, dir.calls, 1, "one batched lookup")
	assert.ElementsMatch(t, []int{23, 5}, dir.calls[0])

	require.Len(t, res.MainWarehouse, 1)
	assert.Equal(t, "1002", res.MainWarehouse[0].OrderID)
	assert.Equal(t, 1, res.MainWarehouse[0].WarehouseID)

	require.Len(t, res.StoreRequests, 2)
	assert.Equal(t, 5, res.StoreRequests[0].StoreID, "sorted by store id")
	assert.Equal(t, "Store 5", res.StoreRequests[0].StoreName)
	assert.Empty(t, res.StoreRequests[0].ManagerPhone)
	assert.Equal(t, 23, res.StoreRequests[1].StoreID)
	assert.Equal(t, "TLV", res.StoreRequests[1].StoreName)
	assert.Equal(t, "050-1", res.StoreRequests[1].ManagerPhone)
	assert.Contains(t, res.StoreRequests[1].MessageText, "Boot\n BOOT")

	require.Len(t, res.Insufficient, 1)
	assert.Equal(t, "1003", res.Insufficient[0].OrderID)
	assert.Equal(t, 1, res.Insufficient[0].MissingQuantity)
}

func TestDistributeWithoutDateSkipsRoute(t *testing.T) {
	routes := &fakeRoutes{}
	d := Distributor{Routes: routes, Warehouses: testWarehouses, Logger: quietLogger()}
	_, err := d.Distribute(context.Background(), Request{Lines: sampleLines()})
	require.NoError(t, err)
	assert.Empty(t, routes.calls)
}

func TestDistributeInactiveRouteIgnored(t *testing.T) {
	monday := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	routes := &fakeRoutes{routes: map[time.Weekday]Route{
		time.Monday: {StoreIDsCSV: "6", Active: false},
	}}
	d := Distributor{Routes: routes, Warehouses: testWarehouses, Logger: quietLogger()}
	res, err := d.Distribute(context.Background(), Request{Lines: []OrderLine{
		{ExternalOrderID: "1", SKU: "S", ProductName: "S", Quantity: 1, AvailableLocationIDs: []int{5, 6}},
	}, DeliveryDate: &monday})
	require.NoError(t, err)
	require.Len(t, res.StoreRequests, 1)
	assert.Equal(t, 5, res.StoreRequests[0].StoreID)
}

func TestDistributeEmptyInput(t *testing.T) {
	dir := &fakeDirectory{}
	d := Distributor{Directory: dir, Warehouses: testWarehouses, Logger: quietLogger()}
	res, err := d.Distribute(context.Background(), Request{})
	require.NoError(t, err)
	assert.Empty(t, dir.calls)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mainWarehouse":[],"storeRequests":[],"insufficient":[]}`, string(b))
}

func TestDistributeDirectoryFailure(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("connection refused")}
	lines := []OrderLine{{ExternalOrderID: "1", SKU: "S", ProductName: "S", Quantity: 1, AvailableLocationIDs: []int{5}}}

	d := Distributor{Directory: dir, Warehouses: testWarehouses, Logger: quietLogger()}
	_, err := d.Distribute(context.Background(), Request{Lines: lines})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDirectoryLookup))

	d.KeepPlaceholdersOnLookupError = true
	res, err := d.Distribute(context.Background(), Request{Lines: lines})
	require.NoError(t, err)
	require.Len(t, res.StoreRequests, 1)
	assert.Equal(t, "Store 5", res.StoreRequests[0].StoreName)
}

func TestDistributeRouteFailure(t *testing.T) {
	date := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	d := Distributor{Routes: &fakeRoutes{err: errors.New("db down")}, Warehouses: testWarehouses, Logger: quietLogger()}
	_, err := d.Distribute(context.Background(), Request{Lines: sampleLines(), DeliveryDate: &date})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRouteLookup))
}

func TestDistributeRunsAreIndependent(t *testing.T) {
	d := Distributor{Directory: &fakeDirectory{}, Warehouses: testWarehouses, Logger: quietLogger()}
	lines := []OrderLine{
		{ExternalOrderID: "1", SKU: "S", ProductName: "S", Quantity: 2, AvailableLocationIDs: []int{5, 6}},
	}
	first, err := d.Distribute(context.Background(), Request{Lines: lines})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := d.Distribute(context.Background(), Request{Lines: lines})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()
	for _, res := range results {
		assert.Equal(t, first, res)
	}
}
