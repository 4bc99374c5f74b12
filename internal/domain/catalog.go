package domain

import "time"

// Product is a read-only catalog entry the engine consults but never
// mutates. Full product CRUD is out of scope; this repo carries only the
// fields the inventory read paths need to satisfy GET /inventory/products/.
type Product struct {
	ID              string    `json:"id"`
	SKU             string    `json:"sku"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	UnitPriceMinor  int64     `json:"unit_price_minor"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// UnitPrice returns the product's price in major currency units, derived
// from the stored minor-unit integer.
func (p *Product) UnitPrice() float64 {
	return float64(p.UnitPriceMinor) / 100
}

// Store status values.
const (
	StoreStatusActive      = "active"
	StoreStatusInactive    = "inactive"
	StoreStatusMaintenance = "maintenance"
)

// Store is a read-only catalog entry identifying a physical location that
// holds inventory.
type Store struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	City      string    `json:"city"`
	Country   string    `json:"country"`
	ZipCode   string    `json:"zip_code"`
	Status    string    `json:"status"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsValidStoreStatus reports whether status is a recognized store status.
func IsValidStoreStatus(status string) bool {
	switch status {
	case StoreStatusActive, StoreStatusInactive, StoreStatusMaintenance:
		return true
	default:
		return false
	}
}

// StoreInventory pairs a Store with the Inventory rows held at it, the
// read-model backing GET /stores/{store_id}/inventory.
type StoreInventory struct {
	Store     Store       `json:"store"`
	Inventory []Inventory `json:"inventory"`
}
