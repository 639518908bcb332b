package repo

import (
	"context"
	"database/sql"
	"time"

	"stockroute/internal/distribution"
)

// InsertOrderItems stores the parsed lines of a file, replacing any earlier parse.
func (r Repo) InsertOrderItems(ctx context.Context, tx *sql.Tx, fileID int64, lines []distribution.OrderLine) error {
	c := r.on(tx)
	if _, err := c.exec(ctx, `DELETE FROM order_items WHERE file_upload_id=?`, fileID); err != nil {
		return err
	}
	for _, l := range lines {
		_, err := c.exec(ctx, `INSERT INTO order_items(file_upload_id,external_id,order_name,shipping_address,shipping_phone,shipping_city,customer_name,order_date,sku,barcode,product_name,quantity,inventory_raw,location_code) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			fileID, l.ExternalOrderID, nullable(l.OrderName), nullable(l.ShippingAddress), nullable(l.ShippingPhone),
			nullable(l.ShippingCity), nullable(l.CustomerName), l.OrderDate.UTC().Format(time.RFC3339),
			l.SKU, nullable(l.Barcode), l.ProductName, l.Quantity,
			nullable(distribution.FormatStoreIDs(l.AvailableLocationIDs)), nullable(l.LocationCode))
		if err != nil {
			return err
		}
	}
	return nil
}

// ListOrderItems returns the stored lines of a file in insertion order.
func (r Repo) ListOrderItems(ctx context.Context, fileID int64) ([]distribution.OrderLine, error) {
	rows, err := r.on(nil).query(ctx, `SELECT external_id,COALESCE(order_name,''),COALESCE(shipping_address,''),COALESCE(shipping_phone,''),COALESCE(shipping_city,''),COALESCE(customer_name,''),order_date,sku,COALESCE(barcode,''),product_name,quantity,COALESCE(inventory_raw,''),COALESCE(location_code,'') FROM order_items WHERE file_upload_id=? ORDER BY id ASC`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []distribution.OrderLine
	for rows.Next() {
		var l distribution.OrderLine
		var date, inventory string
		if err := rows.Scan(&l.ExternalOrderID, &l.OrderName, &l.ShippingAddress, &l.ShippingPhone, &l.ShippingCity, &l.CustomerName,
			&date, &l.SKU, &l.Barcode, &l.ProductName, &l.Quantity, &inventory, &l.LocationCode); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, date); err == nil {
			l.OrderDate = t
		}
		l.AvailableLocationIDs = distribution.ParseStoreIDs(inventory)
		res = append(res, l)
	}
	return res, rows.Err()
}
