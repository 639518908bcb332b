package repo_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"stockroute/internal/db"
	"stockroute/internal/distribution"
	"stockroute/internal/domain"
	"stockroute/internal/migrate"
	"stockroute/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn, db.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn, Dialect: db.SQLite}, context.Background()
}

func TestUsersAndConflicts(t *testing.T) {
	r, ctx := newTestRepo(t)
	u, err := r.InsertUser(ctx, nil, domain.User{Email: " Dana@Example.com ", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if u.ID == 0 || u.Role != domain.RoleUser || u.Email != "dana@example.com" {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, err := r.InsertUser(ctx, nil, domain.User{Email: "dana@example.com", PasswordHash: "y"}); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got, err := r.GetUserByEmail(ctx, "DANA@example.com")
	if err != nil || got.ID != u.ID {
		t.Fatalf("get by email: %+v %v", got, err)
	}
	if _, err := r.GetUser(ctx, 999); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := r.SetUserRole(ctx, u.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if got, _ := r.GetUser(ctx, u.ID); got.Role != domain.RoleAdmin {
		t.Fatalf("role not updated: %s", got.Role)
	}
}

func TestAPIKeys(t *testing.T) {
	r, ctx := newTestRepo(t)
	u, err := r.InsertUser(ctx, nil, domain.User{Email: "a@b.c", PasswordHash: "x"})
	if err != nil {
		t.Fatal(err)
	}
	hash := repo.HashAPIKey(" secret ")
	if hash != repo.HashAPIKey("secret") {
		t.Fatalf("hash should ignore surrounding space")
	}
	if err := r.InsertAPIKey(ctx, nil, domain.APIKey{ID: "k1", UserID: u.ID, Name: "ci", KeyHash: hash}); err != nil {
		t.Fatalf("insert key: %v", err)
	}
	key, err := r.GetAPIKeyByHash(ctx, hash)
	if err != nil || key.UserID != u.ID || key.Name != "ci" {
		t.Fatalf("get key: %+v %v", key, err)
	}
	keys, err := r.ListAPIKeys(ctx, u.ID)
	if err != nil || len(keys) != 1 {
		t.Fatalf("list keys: %v %v", keys, err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestFilesOrdersAndRuns(t *testing.T) {
	r, ctx := newTestRepo(t)
	u, err := r.InsertUser(ctx, nil, domain.User{Email: "a@b.c", PasswordHash: "x"})
	if err != nil {
		t.Fatal(err)
	}
	f, err := r.InsertFileUpload(ctx, nil, domain.FileUpload{UserID: u.ID, Filename: "orders.xlsx", StoredName: "abc.xlsx", Size: 42})
	if err != nil {
		t.Fatalf("insert file: %v", err)
	}
	if f.Status != domain.FileStatusPending {
		t.Fatalf("expected pending, got %s", f.Status)
	}

	date := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	lines := []distribution.OrderLine{
		{ExternalOrderID: "1", SKU: "A", ProductName: "Alpha", Quantity: 2, OrderDate: date, AvailableLocationIDs: []int{5, 70}, LocationCode: "L1"},
		{ExternalOrderID: "1", SKU: "B", ProductName: "Beta", Quantity: 1, OrderDate: date, CustomerName: "Noa"},
	}
	tx, err := r.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.InsertOrderItems(ctx, tx, f.ID, lines); err != nil {
		t.Fatalf("insert items: %v", err)
	}
	total := len(lines)
	if err := r.UpdateFileStatus(ctx, tx, f.ID, domain.FileStatusProcessed, &total, "2025-01-02T00:00:00Z"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	stored, err := r.ListOrderItems(ctx, f.ID)
	if err != nil || len(stored) != 2 {
		t.Fatalf("list items: %v %v", stored, err)
	}
	if !stored[0].OrderDate.Equal(date) || len(stored[0].AvailableLocationIDs) != 2 || stored[0].LocationCode != "L1" {
		t.Fatalf("unexpected first item %+v", stored[0])
	}
	if stored[1].AvailableLocationIDs != nil || stored[1].CustomerName != "Noa" {
		t.Fatalf("unexpected second item %+v", stored[1])
	}

	got, err := r.GetFileUpload(ctx, f.ID)
	if err != nil || got.Status != domain.FileStatusProcessed || got.TotalRows == nil || *got.TotalRows != 2 || got.ProcessedAt == nil {
		t.Fatalf("file not updated: %+v %v", got, err)
	}
	files, err := r.ListFileUploads(ctx, u.ID)
	if err != nil || len(files) != 1 {
		t.Fatalf("list files: %v %v", files, err)
	}

	if _, err := r.LatestRun(ctx, f.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected no run yet, got %v", err)
	}
	fileID := f.ID
	for i := 0; i < 2; i++ {
		if _, err := r.InsertRun(ctx, nil, domain.DistributionRun{FileUploadID: &fileID, UserID: &u.ID, ResultJSON: fmt.Sprintf(`{"n":%d}`, i), SummaryJSON: "{}"}); err != nil {
			t.Fatalf("insert run: %v", err)
		}
	}
	run, err := r.LatestRun(ctx, f.ID)
	if err != nil || run.ResultJSON != `{"n":1}` || run.DeliveryDate != nil {
		t.Fatalf("latest run: %+v %v", run, err)
	}
}

func TestStoresAndDirectory(t *testing.T) {
	r, ctx := newTestRepo(t)
	for _, s := range []domain.Store{
		{ID: 23, Name: "TLV", City: "Tel Aviv", ManagerPhone: "050"},
		{ID: 5, Name: "Givatayim"},
		{ID: 70, Name: "Warehouse outlet", IsMainWarehouse: true},
	} {
		if _, err := r.UpsertStore(ctx, nil, s); err != nil {
			t.Fatalf("upsert %d: %v", s.ID, err)
		}
	}
	if _, err := r.UpsertStore(ctx, nil, domain.Store{ID: 5, Name: "Givatayim Mall", ManagerPhone: "052"}); err != nil {
		t.Fatalf("update store: %v", err)
	}
	stores, err := r.ListStores(ctx)
	if err != nil || len(stores) != 3 || stores[0].ID != 5 || stores[0].Name != "Givatayim Mall" {
		t.Fatalf("list stores: %+v %v", stores, err)
	}
	if !stores[2].IsMainWarehouse {
		t.Fatalf("expected store 70 to be a warehouse")
	}

	dir := repo.StoreDirectory{Repo: r}
	infos, err := dir.LookupByIDs(ctx, []int{23, 5, 404})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 known stores, got %+v", infos)
	}
	if infos[1].ID != 23 || infos[1].Name != "TLV" || infos[1].Phone != "050" {
		t.Fatalf("unexpected info %+v", infos[1])
	}
	if infos, err := dir.LookupByIDs(ctx, nil); err != nil || len(infos) != 0 {
		t.Fatalf("empty lookup: %v %v", infos, err)
	}
}

func TestRoutesAndResolver(t *testing.T) {
	r, ctx := newTestRepo(t)
	resolver := repo.RouteResolver{Repo: r}
	if _, ok, err := resolver.RouteFor(ctx, time.Sunday); err != nil || ok {
		t.Fatalf("expected no route, got ok=%v err=%v", ok, err)
	}

	inactive, err := r.InsertRoute(ctx, nil, domain.DeliveryRoute{DayOfWeek: 0, Stores: "1, 2", IsActive: false})
	if err != nil {
		t.Fatal(err)
	}
	active, err := r.InsertRoute(ctx, nil, domain.DeliveryRoute{DayOfWeek: 0, Stores: "23, 20", IsActive: true})
	if err != nil {
		t.Fatal(err)
	}
	route, ok, err := resolver.RouteFor(ctx, time.Sunday)
	if err != nil || !ok || route.StoreIDsCSV != "23, 20" || !route.Active {
		t.Fatalf("resolver: %+v ok=%v err=%v", route, ok, err)
	}

	on := true
	updated, err := r.UpdateRoute(ctx, nil, inactive.ID, repo.RouteUpdate{IsActive: &on})
	if err != nil || !updated.IsActive || updated.Stores != "1, 2" {
		t.Fatalf("update: %+v %v", updated, err)
	}
	got, err := r.ActiveRouteForDay(ctx, 0)
	if err != nil || got.ID != inactive.ID {
		t.Fatalf("first active route should win: %+v %v", got, err)
	}

	if err := r.DeleteRoute(ctx, nil, active.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.GetRoute(ctx, active.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected deleted route to be gone, got %v", err)
	}
	if _, err := r.UpdateRoute(ctx, nil, active.ID, repo.RouteUpdate{}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found updating deleted route, got %v", err)
	}

	seeded, err := r.UpsertRouteForDay(ctx, nil, 0, "26")
	if err != nil || seeded.ID != inactive.ID || seeded.Stores != "26" {
		t.Fatalf("upsert existing day: %+v %v", seeded, err)
	}
	seeded, err = r.UpsertRouteForDay(ctx, nil, 3, "5, 10")
	if err != nil || seeded.DayOfWeek != 3 || !seeded.IsActive {
		t.Fatalf("upsert new day: %+v %v", seeded, err)
	}
	routes, err := r.ListRoutes(ctx)
	if err != nil || len(routes) != 2 || routes[1].DayOfWeek != 3 {
		t.Fatalf("list routes: %+v %v", routes, err)
	}
}
