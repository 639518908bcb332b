package ingest

import "strings"

type column int

const (
	colExternalID column = iota
	colSKU
	colProductName
	colQuantity
	colOrderName
	colShippingAddress
	colShippingPhone
	colShippingCity
	colCustomerName
	colDate
	colBarcode
	colInventory
	colLocation
)

var headerAliases = map[column][]string{
	colExternalID:      {"External ID", "external_id"},
	colSKU:             {"SKU", "sku"},
	colProductName:     {"Product Name", "product_name"},
	colQuantity:        {"Quantity", "quantity"},
	colOrderName:       {"Order Name", "order_name"},
	colShippingAddress: {"Shipping Address", "shipping_address"},
	colShippingPhone:   {"Shipping Phone", "shipping_phone"},
	colShippingCity:    {"Shipping City", "shipping_city"},
	colCustomerName:    {"Customer Name", "customer_name"},
	colDate:            {"Date", "date"},
	colBarcode:         {"Barcode", "barcode"},
	colInventory:       {"Inventory", "inventory"},
	colLocation:        {"Location", "location"},
}

// mapHeader returns the cell index of every known column. The first matching header
// wins when a sheet carries both spellings.
func mapHeader(header []string) map[column]int {
	cols := make(map[column]int, len(headerAliases))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		for col, aliases := range headerAliases {
			if _, ok := cols[col]; ok {
				continue
			}
			for _, a := range aliases {
				if h == a {
					cols[col] = i
				}
			}
		}
	}
	return cols
}

type record struct {
	cols  map[column]int
	cells []string
}

func (r record) get(c column) string {
	i, ok := r.cols[c]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}
