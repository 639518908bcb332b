package stockroutesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Client is a minimal Stockroute HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base path,
// e.g. http://localhost:8080/api.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// File is an uploaded spreadsheet.
type File struct {
	ID          int64  `json:"id"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	Status      string `json:"status"`
	TotalRows   *int   `json:"totalRows"`
	UploadedAt  string `json:"uploadedAt"`
	ProcessedAt string `json:"processedAt"`
}

type WarehouseLine struct {
	OrderID           string `json:"orderId"`
	SKU               string `json:"sku"`
	ProductName       string `json:"productName"`
	Quantity          int    `json:"quantity"`
	Status            string `json:"status"`
	WarehouseID       int    `json:"warehouseId"`
	LocationCode      string `json:"locationCode"`
	AvailableStoreIDs []int  `json:"availableStoreIds"`
}

type RequestItem struct {
	OrderID           string `json:"orderId"`
	SKU               string `json:"sku"`
	ProductName       string `json:"productName"`
	Quantity          int    `json:"quantity"`
	AvailableStoreIDs []int  `json:"availableStoreIds"`
}

type StoreRequest struct {
	StoreID      int           `json:"storeId"`
	StoreName    string        `json:"storeName"`
	ManagerPhone string        `json:"managerPhone"`
	Items        []RequestItem `json:"items"`
	MessageText  string        `json:"messageText"`
}

type ShortageLine struct {
	OrderID           string `json:"orderId"`
	SKU               string `json:"sku"`
	ProductName       string `json:"productName"`
	Quantity          int    `json:"quantity"`
	Status            string `json:"status"`
	MissingQuantity   int    `json:"missingQuantity"`
	AvailableStoreIDs []int  `json:"availableStoreIds"`
}

// Distribution holds the three buckets of a run.
type Distribution struct {
	MainWarehouse []WarehouseLine `json:"mainWarehouse"`
	StoreRequests []StoreRequest  `json:"storeRequests"`
	Insufficient  []ShortageLine  `json:"insufficient"`
}

type Summary struct {
	MainWarehouse int `json:"mainWarehouse"`
	StoreRequests int `json:"storeRequests"`
	StoreUnits    int `json:"storeUnits"`
	Insufficient  int `json:"insufficient"`
	MissingUnits  int `json:"missingUnits"`
}

type ParseError struct {
	Row        int    `json:"row"`
	ExternalID string `json:"externalId"`
	Message    string `json:"message"`
}

type ProcessResult struct {
	Message     string       `json:"message"`
	TotalRows   int          `json:"totalRows"`
	FileID      int64        `json:"fileId"`
	RunID       int64        `json:"runId"`
	Results     Distribution `json:"results"`
	Summary     Summary      `json:"summary"`
	ParseErrors []ParseError `json:"parseErrors"`
}

type Run struct {
	ID             int64  `json:"id"`
	FileID         int64  `json:"fileId"`
	DeliveryDate   string `json:"deliveryDate"`
	ExcludedStores string `json:"excludedStores"`
	CreatedAt      string `json:"createdAt"`
}

type RunResult struct {
	Run     Run          `json:"run"`
	Results Distribution `json:"results"`
	Summary Summary      `json:"summary"`
}

// ProcessOptions are sent with a process request. A zero DeliveryDate lets the server
// use the current date.
type ProcessOptions struct {
	ExcludedStores []int
	DeliveryDate   time.Time
}

type Store struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	Address         string `json:"address,omitempty"`
	City            string `json:"city,omitempty"`
	ManagerName     string `json:"managerName,omitempty"`
	ManagerPhone    string `json:"managerPhone,omitempty"`
	IsMainWarehouse bool   `json:"isMainWarehouse"`
}

type Route struct {
	ID        int64  `json:"id"`
	DayOfWeek int    `json:"dayOfWeek"`
	Stores    string `json:"stores"`
	IsActive  bool   `json:"isActive"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entityKind"`
	EntityID   string         `json:"entityId"`
	ActorID    string         `json:"actorId"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"nextCursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var resp AuthResult
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{"email": email, "password": password}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// Register creates an account and keeps its token for later calls.
func (c *Client) Register(ctx context.Context, email, password, name string) (AuthResult, error) {
	var resp AuthResult
	err := c.do(ctx, http.MethodPost, "auth/register", map[string]any{"email": email, "password": password, "name": name}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// Upload sends a spreadsheet as the multipart field "file".
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (File, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return File{}, err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return File{}, err
	}
	if err := mw.Close(); err != nil {
		return File{}, err
	}
	var resp struct {
		File File `json:"file"`
	}
	err = c.send(ctx, http.MethodPost, "files/upload", mw.FormDataContentType(), &buf, &resp)
	return resp.File, err
}

// Files lists the caller's uploads.
func (c *Client) Files(ctx context.Context) ([]File, error) {
	var resp []File
	err := c.do(ctx, http.MethodGet, "files", nil, &resp)
	return resp, err
}

// Process parses an uploaded file and distributes its lines.
func (c *Client) Process(ctx context.Context, fileID int64, opts ProcessOptions) (ProcessResult, error) {
	body := map[string]any{}
	if len(opts.ExcludedStores) > 0 {
		body["excludedStores"] = opts.ExcludedStores
	}
	if !opts.DeliveryDate.IsZero() {
		body["deliveryDate"] = opts.DeliveryDate.Format("2006-01-02")
	}
	var resp ProcessResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("files/%d/process", fileID), body, &resp)
	return resp, err
}

// Result returns the latest distribution of a file.
func (c *Client) Result(ctx context.Context, fileID int64) (RunResult, error) {
	var resp RunResult
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("files/%d/result", fileID), nil, &resp)
	return resp, err
}

func (c *Client) Stores(ctx context.Context) ([]Store, error) {
	var resp []Store
	err := c.do(ctx, http.MethodGet, "stores", nil, &resp)
	return resp, err
}

func (c *Client) Routes(ctx context.Context) ([]Route, error) {
	var resp []Route
	err := c.do(ctx, http.MethodGet, "routes", nil, &resp)
	return resp, err
}

// RouteForDay returns the active route of a weekday.
func (c *Client) RouteForDay(ctx context.Context, day time.Weekday) (Route, error) {
	var resp Route
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("routes/day/%d", int(day)), nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	return c.send(ctx, method, endpoint, "application/json", &buf, out)
}

func (c *Client) send(ctx context.Context, method, endpoint, contentType string, body io.Reader, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
