package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"stockroute/internal/config"
	"stockroute/internal/db"
	"stockroute/internal/domain"
	"stockroute/internal/engine"
	"stockroute/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn, db.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	quiet := log.New(io.Discard, "", 0)
	e := engine.New(conn, config.Default(), engine.Options{
		Dialect:   db.SQLite,
		Workspace: workspace,
		JWTSecret: "server-test",
		Logger:    quiet,
	})
	if _, err := e.Seed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/api", Auth: AuthConfig{Logger: quiet}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{Timeout: 10 * time.Second},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return send(t, client, req)
}

func upload(t *testing.T, client *http.Client, url, filename, content string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	io.WriteString(fw, content)
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return send(t, client, req)
}

func send(t *testing.T, client *http.Client, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func register(t *testing.T, srv *testServer, email string) map[string]string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/register", map[string]any{
		"email":    email,
		"password": "secret",
		"name":     "Tester",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("register status %d: %s", res.StatusCode, string(data))
	}
	var out engine.AuthResult
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal auth: %v", err)
	}
	if out.Token == "" {
		t.Fatalf("expected token in %s", string(data))
	}
	return map[string]string{"Authorization": "Bearer " + out.Token}
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env
}

const ordersCSV = "External ID,SKU,Product Name,Quantity,Inventory\n" +
	"1001,BOOT,Boot,2,\"6, 23, 5\"\n" +
	"1002,BAG,Bag,1,\"70, 5\"\n" +
	"1003,HAT,Hat,1,\n"

func TestUploadProcessAndResult(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers := register(t, srv, "owner@example.com")

	res, data := upload(t, client, srv.URL+"/api/files/upload", "orders.csv", ordersCSV, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("upload status %d: %s", res.StatusCode, string(data))
	}
	var uploaded UploadResponse
	if err := json.Unmarshal(data, &uploaded); err != nil {
		t.Fatalf("unmarshal upload: %v", err)
	}
	if uploaded.File.Status != domain.FileStatusPending {
		t.Fatalf("expected pending file, got %+v", uploaded.File)
	}
	fileURL := srv.URL + "/api/files/" + strconv.FormatInt(uploaded.File.ID, 10)

	res, data = doJSON(t, client, http.MethodPost, fileURL+"/process", map[string]any{
		"excludedStores": []int{},
		"deliveryDate":   "2025-03-02",
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("process status %d: %s", res.StatusCode, string(data))
	}
	var processed engine.ProcessResult
	if err := json.Unmarshal(data, &processed); err != nil {
		t.Fatalf("unmarshal process: %v", err)
	}
	if processed.TotalRows != 3 || processed.Summary.StoreRequests != 2 || processed.Summary.MainWarehouse != 1 || processed.Summary.Insufficient != 1 {
		t.Fatalf("unexpected summary %+v", processed.Summary)
	}
	if processed.Results.StoreRequests[1].StoreName != "TLV" {
		t.Fatalf("expected enriched store name, got %+v", processed.Results.StoreRequests)
	}

	res, data = doJSON(t, client, http.MethodGet, fileURL+"/result", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("result status %d: %s", res.StatusCode, string(data))
	}
	var latest engine.RunResult
	if err := json.Unmarshal(data, &latest); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if latest.Run.ID != processed.RunID || len(latest.Results.Insufficient) != 1 {
		t.Fatalf("unexpected result %+v", latest)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/files", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list files status %d: %s", res.StatusCode, string(data))
	}
	var files []domain.FileUpload
	_ = json.Unmarshal(data, &files)
	if len(files) != 1 || files[0].Status != domain.FileStatusProcessed {
		t.Fatalf("unexpected files %+v", files)
	}

	other := register(t, srv, "other@example.com")
	res, data = doJSON(t, client, http.MethodGet, fileURL+"/result", nil, other)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %d %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Error.Code != "forbidden" {
		t.Fatalf("unexpected error code %q", env.Error.Code)
	}
}

func TestProcessRejectsInvalidFiles(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers := register(t, srv, "owner@example.com")

	res, data := upload(t, client, srv.URL+"/api/files/upload", "orders.pdf", "x", headers)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad extension to be rejected, got %d %s", res.StatusCode, string(data))
	}

	res, data = upload(t, client, srv.URL+"/api/files/upload", "bad.csv", "External ID,SKU,Product Name\n1,,\n", headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("upload status %d: %s", res.StatusCode, string(data))
	}
	var uploaded UploadResponse
	_ = json.Unmarshal(data, &uploaded)
	processURL := srv.URL + "/api/files/" + strconv.FormatInt(uploaded.File.ID, 10) + "/process"

	res, data = doJSON(t, client, http.MethodPost, processURL, map[string]any{"deliveryDate": "someday"}, headers)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad date to be rejected, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, processURL, map[string]any{}, headers)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected no valid rows, got %d %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	rows, _ := env.Error.Details["parseErrors"].([]any)
	if env.Error.Code != "no_valid_rows" || len(rows) != 1 {
		t.Fatalf("unexpected envelope %+v", env)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/files/999/process", map[string]any{}, headers)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found, got %d %s", res.StatusCode, string(data))
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/routes", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/routes", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected bad token to be rejected, got %d", res.StatusCode)
	}

	register(t, srv, "owner@example.com")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/register", map[string]any{"email": "owner@example.com", "password": "x"}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/login", map[string]any{"email": "owner@example.com", "password": "wrong"}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected invalid credentials, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/login", map[string]any{"email": "owner@example.com", "password": "secret"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(data))
	}
	var login engine.AuthResult
	_ = json.Unmarshal(data, &login)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/auth/me", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me domain.User
	_ = json.Unmarshal(data, &me)
	if me.Email != "owner@example.com" {
		t.Fatalf("unexpected me %+v", me)
	}
}

func TestRoutesAndStores(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers := register(t, srv, "owner@example.com")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/routes/day/0", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("sunday route status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/routes/day/5", nil, headers)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected no friday route, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/routes", map[string]any{"dayOfWeek": 5, "stores": "abc"}, headers)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected invalid stores, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/routes", map[string]any{"dayOfWeek": 5, "stores": "60, 71"}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create route status %d: %s", res.StatusCode, string(data))
	}
	var created domain.DeliveryRoute
	_ = json.Unmarshal(data, &created)
	routeURL := srv.URL + "/api/routes/" + strconv.FormatInt(created.ID, 10)

	res, data = doJSON(t, client, http.MethodPut, routeURL, map[string]any{"stores": "60"}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update route status %d: %s", res.StatusCode, string(data))
	}
	var updated domain.DeliveryRoute
	_ = json.Unmarshal(data, &updated)
	if updated.Stores != "60" || !updated.IsActive || updated.DayOfWeek != 5 {
		t.Fatalf("unexpected update %+v", updated)
	}
	res, data = doJSON(t, client, http.MethodDelete, routeURL, nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete route status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodDelete, routeURL, nil, headers)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected second delete to 404, got %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/api/stores/23", map[string]any{"name": "TLV", "managerPhone": "050-1234567"}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("put store status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/stores", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list stores status %d: %s", res.StatusCode, string(data))
	}
	var stores []domain.Store
	_ = json.Unmarshal(data, &stores)
	found := false
	for _, s := range stores {
		if s.ID == 23 && s.ManagerPhone == "050-1234567" {
			found = true
		}
	}
	if !found {
		t.Fatalf("store 23 not updated in %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/events?entityKind=route&limit=1", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	_ = json.Unmarshal(data, &page)
	if len(page.Items) != 1 || page.Items[0].Type != "route.deleted" || page.NextCursor == "" {
		t.Fatalf("unexpected events page %+v", page)
	}
}
