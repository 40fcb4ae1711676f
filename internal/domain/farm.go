package domain

import "time"

// Scheme is a government scheme from the scheme_master table.
type Scheme struct {
	SchemeID    string     `json:"scheme_id"`
	SchemeName  string     `json:"scheme_name"`
	Description string     `json:"description,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Region      string     `json:"region,omitempty"`
	Crop        string     `json:"crop,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AppliedScheme records a farmer's application for a scheme.
type AppliedScheme struct {
	ReferenceID string    `json:"reference_id"`
	SchemeID    string    `json:"scheme_id"`
	FarmerID    string    `json:"farmer_id"`
	AppliedAt   time.Time `json:"applied_at"`
}

// StockItem is a farmer's current stock of one item.
type StockItem struct {
	FarmerID string  `json:"farmer_id"`
	ItemName string  `json:"item_name"`
	Quantity float64 `json:"quantity"`
}

// StockLog records consumption of a stock item.
type StockLog struct {
	ID        string    `json:"id"`
	FarmerID  string    `json:"farmer_id"`
	ItemName  string    `json:"item_name"`
	Used      float64   `json:"used"`
	Timestamp time.Time `json:"timestamp"`
}

// Order is a reorder placed for a farmer.
type Order struct {
	OrderID   string    `json:"order_id"`
	FarmerID  string    `json:"farmer_id"`
	ItemName  string    `json:"item_name"`
	Quantity  float64   `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}
