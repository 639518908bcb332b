package distribution

import "time"

// OrderLine is one validated spreadsheet row.
type OrderLine struct {
	ExternalOrderID string    `json:"externalId"`
	OrderName       string    `json:"orderName,omitempty"`
	CustomerName    string    `json:"customerName,omitempty"`
	ShippingAddress string    `json:"shippingAddress,omitempty"`
	ShippingCity    string    `json:"shippingCity,omitempty"`
	ShippingPhone   string    `json:"shippingPhone,omitempty"`
	OrderDate       time.Time `json:"orderDate"`

	SKU                  string `json:"sku"`
	Barcode              string `json:"barcode,omitempty"`
	ProductName          string `json:"productName"`
	Quantity             int    `json:"quantity"`
	AvailableLocationIDs []int  `json:"availableStoreIds"`
	LocationCode         string `json:"locationCode,omitempty"`
}

// Item is an order line as seen inside its group.
type Item struct {
	SKU                  string
	ProductName          string
	Quantity             int
	AvailableLocationIDs []int
	LocationCode         string
}

// OrderGroup aggregates the lines of one external order.
type OrderGroup struct {
	ExternalOrderID string
	OrderName       string
	CustomerName    string
	ShippingAddress string
	ShippingCity    string
	OrderDate       time.Time
	Items           []Item
	TotalUnits      int
}

const (
	StatusMainWarehouse = "main_warehouse"
	StatusInsufficient  = "insufficient"
)

// WarehouseLine is a line fulfilled entirely from a main warehouse.
type WarehouseLine struct {
	OrderID           string `json:"orderId"`
	SKU               string `json:"sku"`
	ProductName       string `json:"productName"`
	Quantity          int    `json:"quantity"`
	Status            string `json:"status"`
	WarehouseID       int    `json:"warehouseId"`
	LocationCode      string `json:"locationCode,omitempty"`
	AvailableStoreIDs []int  `json:"availableStoreIds"`
}

// RequestItem is one unit asked from a store.
type RequestItem struct {
	OrderID           string `json:"orderId"`
	SKU               string `json:"sku"`
	ProductName       string `json:"productName"`
	Quantity          int    `json:"quantity"`
	AvailableStoreIDs []int  `json:"availableStoreIds"`
}

// StoreRequest collects everything a single store is asked to send.
type StoreRequest struct {
	StoreID      int           `json:"storeId"`
	StoreName    string        `json:"storeName"`
	ManagerPhone string        `json:"managerPhone,omitempty"`
	Items        []RequestItem `json:"items"`
	MessageText  string        `json:"messageText"`
}

// ShortageLine carries the part of a line no store could cover.
type ShortageLine struct {
	OrderID           string `json:"orderId"`
	SKU               string `json:"sku"`
	ProductName       string `json:"productName"`
	Quantity          int    `json:"quantity"`
	Status            string `json:"status"`
	MissingQuantity   int    `json:"missingQuantity"`
	AvailableStoreIDs []int  `json:"availableStoreIds"`
}

// Result is the outcome of one distribution run.
type Result struct {
	MainWarehouse []WarehouseLine `json:"mainWarehouse"`
	StoreRequests []StoreRequest  `json:"storeRequests"`
	Insufficient  []ShortageLine  `json:"insufficient"`
}

// EmptyResult returns a result whose buckets encode as empty arrays.
func EmptyResult() Result {
	return Result{
		MainWarehouse: []WarehouseLine{},
		StoreRequests: []StoreRequest{},
		Insufficient:  []ShortageLine{},
	}
}

// Summary counts the buckets of a result.
type Summary struct {
	MainWarehouse int `json:"mainWarehouse"`
	StoreRequests int `json:"storeRequests"`
	StoreUnits    int `json:"storeUnits"`
	Insufficient  int `json:"insufficient"`
	MissingUnits  int `json:"missingUnits"`
}

func (r Result) Summary() Summary {
	s := Summary{
		MainWarehouse: len(r.MainWarehouse),
		StoreRequests: len(r.StoreRequests),
		Insufficient:  len(r.Insufficient),
	}
	for _, req := range r.StoreRequests {
		for _, it := range req.Items {
			s.StoreUnits += it.Quantity
		}
	}
	for _, sh := range r.Insufficient {
		s.MissingUnits += sh.MissingQuantity
	}
	return s
}
