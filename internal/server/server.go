package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"stockroute/internal/domain"
	"stockroute/internal/engine"
	"stockroute/internal/engine/auth"
	"stockroute/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"no_valid_rows"`
	Message string         `json:"message" example:"the file does not contain valid data"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the stockroute API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine))
	hcfg := huma.DefaultConfig("Stockroute API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, cfg.Engine)
	registerUpload(router, basePath, cfg.Engine)
	registerFiles(group, cfg.Engine)
	registerStores(group, cfg.Engine)
	registerRoutes(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"resource": fe.Resource})
	}
	var nv *engine.NoValidRowsError
	if errors.As(err, &nv) {
		return newAPIError(http.StatusBadRequest, "no_valid_rows", engine.ErrNoValidRows.Error(), map[string]any{"parseErrors": nonNilSlice(nv.ParseErrors)})
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, repo.ErrConflict):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	case errors.Is(err, auth.ErrInvalidToken):
		return newAPIError(http.StatusUnauthorized, "invalid_token", err.Error(), nil)
	case errors.Is(err, engine.ErrTooLarge):
		return newAPIError(http.StatusRequestEntityTooLarge, "file_too_large", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidInput):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			addUploadOperation(oas, basePath)
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

// addUploadOperation documents the multipart upload route, which is served by chi directly.
func addUploadOperation(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	oas.AddOperation(&huma.Operation{
		OperationID: "upload-file",
		Method:      http.MethodPost,
		Path:        path.Join(basePath, "files/upload"),
		Summary:     "Upload an order spreadsheet (.xlsx or .csv)",
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"multipart/form-data": {
					Schema: &huma.Schema{
						Type:     "object",
						Required: []string{"file"},
						Properties: map[string]*huma.Schema{
							"file": {Type: "string", Format: "binary"},
						},
					},
				},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {Description: "Stored file"},
		},
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	public := map[string]bool{
		path.Join("/", basePath, "health"):        true,
		path.Join("/", basePath, "auth/register"): true,
		path.Join("/", basePath, "auth/login"):    true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Stockroute API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAuth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "register",
		Method:      http.MethodPost,
		Path:        "/auth/register",
		Summary:     "Create an account",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest `json:"body"`
	}) (*struct {
		Body engine.AuthResult `json:"body"`
	}, error) {
		res, err := e.Register(ctx, input.Body.Email, input.Body.Password, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.AuthResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body engine.AuthResult `json:"body"`
	}, error) {
		res, err := e.Login(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.AuthResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/auth/me",
		Summary:     "Current user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.Me(ctx, principal.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})
}

func registerUpload(r chi.Router, basePath string, e engine.Engine) {
	r.Post(path.Join(basePath, "files/upload"), func(w http.ResponseWriter, req *http.Request) {
		principal, authErr := principalFromRequest(req.Context())
		if authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		mr, err := req.MultipartReader()
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "multipart form with a file field required", nil))
			return
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "invalid multipart body", map[string]any{"error": err.Error()}))
				return
			}
			if part.FormName() != "file" || part.FileName() == "" {
				part.Close()
				continue
			}
			f, err := e.SaveUpload(req.Context(), principal.UserID, part.FileName(), part)
			part.Close()
			if err != nil {
				respondStatusError(w, handleError(err))
				return
			}
			respondJSON(w, http.StatusOK, UploadResponse{Message: "File uploaded successfully", File: f})
			return
		}
		respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "no file uploaded", nil))
	})
}

func registerFiles(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-files",
		Method:      http.MethodGet,
		Path:        "/files",
		Summary:     "List uploaded files of the current user",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.FileUpload `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		files, err := e.ListFiles(ctx, principal.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.FileUpload `json:"body"`
		}{Body: nonNilSlice(files)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "process-file",
		Method:      http.MethodPost,
		Path:        "/files/{id}/process",
		Summary:     "Parse a file and distribute its order lines",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64          `path:"id"`
		Body ProcessRequest `json:"body" required:"false"`
	}) (*struct {
		Body engine.ProcessResult `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		date, err := parseDeliveryDate(input.Body.DeliveryDate)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"deliveryDate": input.Body.DeliveryDate})
		}
		res, err := e.ProcessFile(ctx, principal.UserID, input.ID, engine.ProcessOptions{
			DeliveryDate:     date,
			ExcludedStoreIDs: input.Body.ExcludedStores,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ProcessResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "file-result",
		Method:      http.MethodGet,
		Path:        "/files/{id}/result",
		Summary:     "Latest distribution of a file",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body engine.RunResult `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.LatestResult(ctx, principal.UserID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.RunResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerStores(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-stores",
		Method:      http.MethodGet,
		Path:        "/stores",
		Summary:     "List stores and warehouses",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Store `json:"body"`
	}, error) {
		stores, err := e.ListStores(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Store `json:"body"`
		}{Body: nonNilSlice(stores)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-store",
		Method:      http.MethodPut,
		Path:        "/stores/{id}",
		Summary:     "Create or replace a store",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ID   int          `path:"id"`
		Body StoreRequest `json:"body"`
	}) (*struct {
		Body domain.Store `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.UpsertStore(ctx, principal.Actor(), storeFromRequest(input.ID, input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Store `json:"body"`
		}{Body: s}, nil
	})
}

func registerRoutes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-routes",
		Method:      http.MethodGet,
		Path:        "/routes",
		Summary:     "List delivery routes",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.DeliveryRoute `json:"body"`
	}, error) {
		routes, err := e.ListRoutes(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.DeliveryRoute `json:"body"`
		}{Body: nonNilSlice(routes)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "route-for-day",
		Method:      http.MethodGet,
		Path:        "/routes/day/{day}",
		Summary:     "Active route of a weekday (0 = Sunday)",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Day int `path:"day"`
	}) (*struct {
		Body domain.DeliveryRoute `json:"body"`
	}, error) {
		rt, err := e.RouteForDay(ctx, input.Day)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, newAPIError(http.StatusNotFound, "not_found", "no route found for this day", map[string]any{"dayOfWeek": input.Day})
			}
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DeliveryRoute `json:"body"`
		}{Body: rt}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-route",
		Method:      http.MethodPost,
		Path:        "/routes",
		Summary:     "Create a delivery route",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateRouteRequest `json:"body"`
	}) (*struct {
		Body domain.DeliveryRoute `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rt, err := e.CreateRoute(ctx, principal.Actor(), input.Body.DayOfWeek, input.Body.Stores)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DeliveryRoute `json:"body"`
		}{Body: rt}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-route",
		Method:      http.MethodPut,
		Path:        "/routes/{id}",
		Summary:     "Update a delivery route",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64              `path:"id"`
		Body UpdateRouteRequest `json:"body"`
	}) (*struct {
		Body domain.DeliveryRoute `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rt, err := e.UpdateRoute(ctx, principal.Actor(), input.ID, repo.RouteUpdate{
			DayOfWeek: input.Body.DayOfWeek,
			Stores:    input.Body.Stores,
			IsActive:  input.Body.IsActive,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DeliveryRoute `json:"body"`
		}{Body: rt}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-route",
		Method:      http.MethodDelete,
		Path:        "/routes/{id}",
		Summary:     "Delete a delivery route",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body MessageResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteRoute(ctx, principal.Actor(), input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MessageResponse `json:"body"`
		}{Body: MessageResponse{Message: "Route deleted successfully"}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entityKind" enum:"user,file,run,store,route"`
		EntityID   string `query:"entityId"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		filters := repo.EventFilters{Type: input.Type, EntityKind: input.EntityKind, EntityID: input.EntityID}
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || parsed <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			filters.Before = parsed
		}
		items, err := e.Repo.LatestEvents(ctx, limit+1, filters)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

var deliveryDateLayouts = []string{"2006-01-02", time.RFC3339}

func parseDeliveryDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range deliveryDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid deliveryDate %q", raw)
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
