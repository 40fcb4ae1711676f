package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kisansathi/orchestrator/internal/domain"
)

// FarmStore is the persistence surface the farm tools need.
type FarmStore interface {
	ListSchemes(ctx context.Context, region, crop string) ([]domain.Scheme, error)
	GetScheme(ctx context.Context, schemeID string) (*domain.Scheme, error)
	CreateApplication(ctx context.Context, app *domain.AppliedScheme) error
	ListStock(ctx context.Context, farmerID string) ([]domain.StockItem, error)
	CreateOrder(ctx context.Context, order *domain.Order) error
}

// reorderCatalog maps item names to restock levels and vendors. Items not
// listed here are never suggested for reorder.
var reorderCatalog = map[string]struct {
	RestockLevel float64
	VendorID     string
	PricePerUnit float64
}{
	"wheat":  {RestockLevel: 15, VendorID: "V123", PricePerUnit: 150},
	"tomato": {RestockLevel: 7, VendorID: "V456", PricePerUnit: 200},
}

// RegisterFarmTools wires the farm tool set into the registry.
func RegisterFarmTools(r *Registry, st FarmStore) {
	r.MustRegister(Descriptor{
		Name:        "crop_diagnosis",
		Description: "Diagnose a crop disease from a description and an optional photo of the plant.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"farmer_id": {"type": "string", "description": "Farmer identifier"},
				"query_input": {"type": "string", "description": "Description of the symptoms"}
			},
			"required": ["farmer_id", "query_input"]
		}`),
		Execute: cropDiagnosis,
	})
	r.MustRegister(Descriptor{
		Name:        "financial_planner",
		Description: "Compute total cost, expected income, net profit and break-even price for a crop plan.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"crop": {"type": "string"},
				"area_acres": {"type": "number"},
				"total_seed_cost": {"type": "number"},
				"total_fertilizer_cost": {"type": "number"},
				"total_labor_cost": {"type": "number"},
				"expected_yield_kg": {"type": "number"},
				"expected_price_per_kg": {"type": "number"}
			},
			"required": ["crop", "total_seed_cost", "total_fertilizer_cost", "total_labor_cost", "expected_yield_kg", "expected_price_per_kg"]
		}`),
		Execute: financialPlanner,
	})
	r.MustRegister(Descriptor{
		Name:        "inventory_status",
		Description: "List the farmer's current stock items and quantities.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"farmer_id": {"type": "string"}
			},
			"required": ["farmer_id"]
		}`),
		Execute: inventoryStatus(st),
	})
	r.MustRegister(Descriptor{
		Name:        "reorder_suggestions",
		Description: "Suggest stock items to reorder based on current quantities, with vendor and price.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"farmer_id": {"type": "string"}
			},
			"required": ["farmer_id"]
		}`),
		Execute: reorderSuggestions(st),
	})
	r.MustRegister(Descriptor{
		Name:        "place_reorder",
		Description: "Place a restock order for an item once the farmer confirms a reorder suggestion.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"farmer_id": {"type": "string"},
				"item_name": {"type": "string"},
				"quantity": {"type": "number"}
			},
			"required": ["farmer_id", "item_name", "quantity"]
		}`),
		Execute: placeReorder(st),
	})
	r.MustRegister(Descriptor{
		Name:        "market_price",
		Description: "Fetch the current mandi price and trend for a crop.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"crop": {"type": "string"},
				"mandi": {"type": "string"}
			},
			"required": ["crop"]
		}`),
		Execute: marketPrice,
	})
	r.MustRegister(Descriptor{
		Name:        "schemes",
		Description: "List government schemes, optionally filtered by region and crop.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"region": {"type": "string"},
				"crop": {"type": "string"}
			}
		}`),
		Execute: listSchemes(st),
	})
	r.MustRegister(Descriptor{
		Name:        "apply_scheme",
		Description: "Apply the farmer to a government scheme and return the application reference id.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"scheme_id": {"type": "string"},
				"farmer_id": {"type": "string"}
			},
			"required": ["scheme_id", "farmer_id"]
		}`),
		Execute: applyScheme(st),
	})
	r.MustRegister(Descriptor{
		Name:        "weather_advisory",
		Description: "Get the weather forecast, critical alerts and crop recommendations for a location.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"lat": {"type": "number"},
				"lon": {"type": "number"}
			},
			"required": ["lat", "lon"]
		}`),
		Execute: weatherAdvisory,
	})
	r.MustRegister(Descriptor{
		Name:        "buyer_lookup",
		Description: "Find nearby mandi buyers for a crop with contact and price per quintal.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"crop": {"type": "string"},
				"lat": {"type": "number"},
				"lon": {"type": "number"}
			},
			"required": ["crop"]
		}`),
		Execute: buyerLookup,
	})
}

func cropDiagnosis(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		FarmerID   string `json:"farmer_id"`
		QueryInput string `json:"query_input"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return json.Marshal(map[string]any{
		"diagnosis":  "Powdery Mildew",
		"confidence": 0.91,
		"recommended_actions": []string{
			"Use neem spray in mornings.",
			"Avoid watering in evening.",
		},
	})
}

func financialPlanner(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Crop               string  `json:"crop"`
		AreaAcres          float64 `json:"area_acres"`
		SeedCost           float64 `json:"total_seed_cost"`
		FertilizerCost     float64 `json:"total_fertilizer_cost"`
		LaborCost          float64 `json:"total_labor_cost"`
		ExpectedYieldKg    float64 `json:"expected_yield_kg"`
		ExpectedPricePerKg float64 `json:"expected_price_per_kg"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	cost := in.SeedCost + in.FertilizerCost + in.LaborCost
	income := in.ExpectedYieldKg * in.ExpectedPricePerKg
	breakEven := 0.0
	if in.ExpectedYieldKg > 0 {
		breakEven = math.Round(cost/in.ExpectedYieldKg*100) / 100
	}
	return json.Marshal(map[string]any{
		"total_cost":       cost,
		"expected_income":  income,
		"net_profit":       income - cost,
		"break_even_price": breakEven,
	})
}

func inventoryStatus(st FarmStore) ExecutorFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			FarmerID string `json:"farmer_id"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		items, err := st.ListStock(ctx, in.FarmerID)
		if err != nil {
			return nil, fmt.Errorf("failed to list stock: %w", err)
		}
		out := make([]map[string]any, 0, len(items))
		for _, it := range items {
			out = append(out, map[string]any{
				"item_name": it.ItemName,
				"quantity":  it.Quantity,
			})
		}
		return json.Marshal(out)
	}
}

func reorderSuggestions(st FarmStore) ExecutorFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			FarmerID string `json:"farmer_id"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		items, err := st.ListStock(ctx, in.FarmerID)
		if err != nil {
			return nil, fmt.Errorf("failed to list stock: %w", err)
		}
		suggestions := make([]map[string]any, 0)
		for _, it := range items {
			entry, ok := reorderCatalog[it.ItemName]
			if !ok || it.Quantity >= entry.RestockLevel {
				continue
			}
			suggestions = append(suggestions, map[string]any{
				"item_name":      it.ItemName,
				"need_quantity":  entry.RestockLevel - it.Quantity,
				"vendor_id":      entry.VendorID,
				"price_per_unit": entry.PricePerUnit,
			})
		}
		return json.Marshal(suggestions)
	}
}

func placeReorder(st FarmStore) ExecutorFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			FarmerID string  `json:"farmer_id"`
			ItemName string  `json:"item_name"`
			Quantity float64 `json:"quantity"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if in.Quantity <= 0 {
			return nil, fmt.Errorf("quantity must be positive, got %v", in.Quantity)
		}

		order := &domain.Order{
			OrderID:   "ord_" + uuid.New().String()[:8],
			FarmerID:  in.FarmerID,
			ItemName:  in.ItemName,
			Quantity:  in.Quantity,
			Timestamp: time.Now(),
		}
		if err := st.CreateOrder(ctx, order); err != nil {
			return nil, fmt.Errorf("failed to record order: %w", err)
		}

		out := map[string]any{
			"status":    "ordered",
			"order_id":  order.OrderID,
			"item_name": order.ItemName,
			"quantity":  order.Quantity,
		}
		if entry, ok := reorderCatalog[in.ItemName]; ok {
			out["vendor_id"] = entry.VendorID
			out["price_per_unit"] = entry.PricePerUnit
		}
		return json.Marshal(out)
	}
}

func marketPrice(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Crop  string `json:"crop"`
		Mandi string `json:"mandi"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	mandi := in.Mandi
	if mandi == "" {
		mandi = "Default Mandi"
	}
	return json.Marshal(map[string]any{
		"crop":   in.Crop,
		"mandi":  mandi,
		"price":  2100,
		"trend":  "rising",
		"advice": "Consider waiting a week for better rates.",
	})
}

func listSchemes(st FarmStore) ExecutorFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			Region string `json:"region"`
			Crop   string `json:"crop"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		schemes, err := st.ListSchemes(ctx, in.Region, in.Crop)
		if err != nil {
			return nil, fmt.Errorf("failed to list schemes: %w", err)
		}
		if schemes == nil {
			schemes = []domain.Scheme{}
		}
		return json.Marshal(schemes)
	}
}

func applyScheme(st FarmStore) ExecutorFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			SchemeID string `json:"scheme_id"`
			FarmerID string `json:"farmer_id"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		scheme, err := st.GetScheme(ctx, in.SchemeID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up scheme: %w", err)
		}
		if scheme == nil {
			return nil, fmt.Errorf("invalid scheme_id: %s", in.SchemeID)
		}

		refID := fmt.Sprintf("%s-%s-%s", in.SchemeID, in.FarmerID, uuid.New().String()[:6])
		app := &domain.AppliedScheme{
			ReferenceID: refID,
			SchemeID:    in.SchemeID,
			FarmerID:    in.FarmerID,
			AppliedAt:   time.Now(),
		}
		if err := st.CreateApplication(ctx, app); err != nil {
			return nil, fmt.Errorf("failed to record application: %w", err)
		}
		return json.Marshal(map[string]any{
			"status":       "applied",
			"reference_id": refID,
			"scheme_id":    in.SchemeID,
			"scheme_name":  scheme.SchemeName,
		})
	}
}

func weatherAdvisory(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return json.Marshal(map[string]any{
		"forecast": "Partly cloudy skies with a low chance of rain (5%). Temperatures from 28C to 36C, humidity around 74%.",
		"critical_alerts": []string{
			"The extended forecast predicts increasing chances of thunderstorms and heavy rainfall later in the week, which poses a risk of waterlogging for fields.",
		},
		"recommendations": []string{
			"Wheat: favorable for land preparation; ensure field drainage is in place before the next sowing season.",
			"Mustard: suitable for initial field preparations; establish proper drainage before monsoon showers.",
			"Sugarcane: active vegetative stage; monitor for humidity-driven diseases and keep drainage clear.",
		},
	})
}

func buyerLookup(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Crop string  `json:"crop"`
		Lat  float64 `json:"lat"`
		Lon  float64 `json:"lon"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return json.Marshal([]map[string]any{
		{"mandi_name": "Azadpur Mandi Traders", "mandi_location": "Azadpur, Delhi", "mobile_number": "9305945068", "price_per_quintal": 2150},
		{"mandi_name": "Ghazipur Agro Buyers", "mandi_location": "Ghazipur, Delhi", "mobile_number": "9305945068", "price_per_quintal": 2080},
		{"mandi_name": "Narela Kisan Mandi", "mandi_location": "Narela, Delhi", "mobile_number": "9305945068", "price_per_quintal": 2120},
	})
}
