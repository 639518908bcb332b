package distribution

import "sort"

// GroupLines folds flat lines into one group per external order id, in order of first
// appearance. Order-level fields come from the first line of each order.
func GroupLines(lines []OrderLine) []OrderGroup {
	index := make(map[string]int, len(lines))
	var groups []OrderGroup
	for _, l := range lines {
		i, ok := index[l.ExternalOrderID]
		if !ok {
			i = len(groups)
			index[l.ExternalOrderID] = i
			groups = append(groups, OrderGroup{
				ExternalOrderID: l.ExternalOrderID,
				OrderName:       l.OrderName,
				CustomerName:    l.CustomerName,
				ShippingAddress: l.ShippingAddress,
				ShippingCity:    l.ShippingCity,
				OrderDate:       l.OrderDate,
			})
		}
		g := &groups[i]
		g.Items = append(g.Items, Item{
			SKU:                  l.SKU,
			ProductName:          l.ProductName,
			Quantity:             l.Quantity,
			AvailableLocationIDs: l.AvailableLocationIDs,
			LocationCode:         l.LocationCode,
		})
		g.TotalUnits += l.Quantity
	}
	return groups
}

// Rank orders groups by total units (desc) then order date (asc). Equal groups keep
// their relative order.
func Rank(groups []OrderGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.TotalUnits != b.TotalUnits {
			return a.TotalUnits > b.TotalUnits
		}
		return a.OrderDate.Before(b.OrderDate)
	})
}
