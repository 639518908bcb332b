package domain

const (
	FileStatusPending   = "pending"
	FileStatusProcessed = "processed"
	FileStatusError     = "error"

	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name,omitempty"`
	Role         string `json:"role" enum:"user,admin"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"createdAt" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    int64  `json:"userId"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}

type FileUpload struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"userId"`
	Filename    string  `json:"filename"`
	StoredName  string  `json:"-"`
	Size        int64   `json:"size"`
	Status      string  `json:"status" enum:"pending,processed,error"`
	TotalRows   *int    `json:"totalRows,omitempty"`
	UploadedAt  string  `json:"uploadedAt" format:"date-time"`
	ProcessedAt *string `json:"processedAt,omitempty" format:"date-time"`
}

type Store struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	Address         string `json:"address,omitempty"`
	City            string `json:"city,omitempty"`
	ManagerName     string `json:"managerName,omitempty"`
	ManagerPhone    string `json:"managerPhone,omitempty"`
	IsMainWarehouse bool   `json:"isMainWarehouse"`
	UpdatedAt       string `json:"updatedAt,omitempty" format:"date-time"`
}

type DeliveryRoute struct {
	ID        int64  `json:"id"`
	DayOfWeek int    `json:"dayOfWeek" minimum:"0" maximum:"6"`
	Stores    string `json:"stores"`
	IsActive  bool   `json:"isActive"`
	CreatedAt string `json:"createdAt" format:"date-time"`
	UpdatedAt string `json:"updatedAt" format:"date-time"`
}

type DistributionRun struct {
	ID             int64   `json:"id"`
	FileUploadID   *int64  `json:"fileId,omitempty"`
	UserID         *int64  `json:"userId,omitempty"`
	DeliveryDate   *string `json:"deliveryDate,omitempty" format:"date-time"`
	ExcludedStores string  `json:"excludedStores,omitempty"`
	ResultJSON     string  `json:"-"`
	SummaryJSON    string  `json:"-"`
	CreatedAt      string  `json:"createdAt" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entityKind"`
	EntityID   string `json:"entityId,omitempty"`
	ActorID    string `json:"actorId"`
	Payload    string `json:"payloadJson"`
}
