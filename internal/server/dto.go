package server

import (
	"encoding/json"

	"stockroute/internal/domain"
)

// Request payloads

type RegisterRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password" minLength:"1"`
	Name     string `json:"name,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ProcessRequest struct {
	ExcludedStores []int  `json:"excludedStores,omitempty" doc:"Store ids that must not receive requests"`
	DeliveryDate   string `json:"deliveryDate,omitempty" doc:"Delivery date (YYYY-MM-DD or RFC3339); defaults to now"`
}

type StoreRequest struct {
	Name            string `json:"name"`
	Address         string `json:"address,omitempty"`
	City            string `json:"city,omitempty"`
	ManagerName     string `json:"managerName,omitempty"`
	ManagerPhone    string `json:"managerPhone,omitempty"`
	IsMainWarehouse bool   `json:"isMainWarehouse,omitempty"`
}

type CreateRouteRequest struct {
	DayOfWeek int    `json:"dayOfWeek" minimum:"0" maximum:"6"`
	Stores    string `json:"stores" example:"23, 20, 26"`
}

type UpdateRouteRequest struct {
	DayOfWeek *int    `json:"dayOfWeek,omitempty" minimum:"0" maximum:"6"`
	Stores    *string `json:"stores,omitempty"`
	IsActive  *bool   `json:"isActive,omitempty"`
}

// Response payloads

type UploadResponse struct {
	Message string            `json:"message"`
	File    domain.FileUpload `json:"file"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entityKind"`
	EntityID   string         `json:"entityId,omitempty"`
	ActorID    string         `json:"actorId"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func storeFromRequest(id int, req StoreRequest) domain.Store {
	return domain.Store{
		ID:              id,
		Name:            req.Name,
		Address:         req.Address,
		City:            req.City,
		ManagerName:     req.ManagerName,
		ManagerPhone:    req.ManagerPhone,
		IsMainWarehouse: req.IsMainWarehouse,
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
