package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kisansathi/orchestrator/internal/domain"
)

type fakeStore struct {
	stock   []domain.StockItem
	schemes []domain.Scheme
	applied []domain.AppliedScheme
	orders  []domain.Order
}

func (f *fakeStore) ListSchemes(ctx context.Context, region, crop string) ([]domain.Scheme, error) {
	return f.schemes, nil
}

func (f *fakeStore) GetScheme(ctx context.Context, schemeID string) (*domain.Scheme, error) {
	for i := range f.schemes {
		if f.schemes[i].SchemeID == schemeID {
			return &f.schemes[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateApplication(ctx context.Context, app *domain.AppliedScheme) error {
	f.applied = append(f.applied, *app)
	return nil
}

func (f *fakeStore) ListStock(ctx context.Context, farmerID string) ([]domain.StockItem, error) {
	return f.stock, nil
}

func (f *fakeStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	f.orders = append(f.orders, *order)
	return nil
}

func newFarmRegistry(t *testing.T, st FarmStore) *Registry {
	t.Helper()
	r := NewRegistry()
	RegisterFarmTools(r, st)
	return r
}

func TestRegistryOrderAndSpecs(t *testing.T) {
	r := newFarmRegistry(t, &fakeStore{})

	specs := r.Specs()
	if len(specs) != 10 {
		t.Fatalf("expected 10 tools, got %d", len(specs))
	}
	if specs[0].Name != "crop_diagnosis" || specs[9].Name != "buyer_lookup" {
		t.Errorf("specs not in registration order: %v, %v", specs[0].Name, specs[9].Name)
	}
	for _, s := range specs {
		if !json.Valid(s.Parameters) {
			t.Errorf("tool %s has invalid parameter schema", s.Name)
		}
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	d := Descriptor{
		Name:    "noop",
		Execute: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) { return nil, nil },
	}
	if err := r.Register(d); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register(d); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Execute(context.Background(), "missing", nil); err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if r.Get("missing") != nil {
		t.Fatal("Get should return nil for unknown tool")
	}
}

func TestFinancialPlanner(t *testing.T) {
	r := newFarmRegistry(t, &fakeStore{})
	out, err := r.Execute(context.Background(), "financial_planner", json.RawMessage(`{
		"crop": "wheat",
		"total_seed_cost": 1000,
		"total_fertilizer_cost": 500,
		"total_labor_cost": 1500,
		"expected_yield_kg": 400,
		"expected_price_per_kg": 10
	}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	var res struct {
		TotalCost      float64 `json:"total_cost"`
		ExpectedIncome float64 `json:"expected_income"`
		NetProfit      float64 `json:"net_profit"`
		BreakEven      float64 `json:"break_even_price"`
	}
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatalf("bad result json: %v", err)
	}
	if res.TotalCost != 3000 || res.ExpectedIncome != 4000 || res.NetProfit != 1000 {
		t.Errorf("unexpected plan: %+v", res)
	}
	if res.BreakEven != 7.5 {
		t.Errorf("expected break even 7.5, got %v", res.BreakEven)
	}
}

func TestFinancialPlannerZeroYield(t *testing.T) {
	r := newFarmRegistry(t, &fakeStore{})
	out, err := r.Execute(context.Background(), "financial_planner", json.RawMessage(`{
		"crop": "wheat",
		"total_seed_cost": 100,
		"total_fertilizer_cost": 0,
		"total_labor_cost": 0,
		"expected_yield_kg": 0,
		"expected_price_per_kg": 10
	}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	var res struct {
		BreakEven float64 `json:"break_even_price"`
	}
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatalf("bad result json: %v", err)
	}
	if res.BreakEven != 0 {
		t.Errorf("expected break even 0 for zero yield, got %v", res.BreakEven)
	}
}

func TestReorderSuggestions(t *testing.T) {
	st := &fakeStore{stock: []domain.StockItem{
		{FarmerID: "F001", ItemName: "wheat", Quantity: 5},
		{FarmerID: "F001", ItemName: "tomato", Quantity: 12},
	}}
	r := newFarmRegistry(t, st)

	out, err := r.Execute(context.Background(), "reorder_suggestions", json.RawMessage(`{"farmer_id":"F001"}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	var suggestions []struct {
		ItemName     string  `json:"item_name"`
		NeedQuantity float64 `json:"need_quantity"`
		VendorID     string  `json:"vendor_id"`
	}
	if err := json.Unmarshal(out, &suggestions); err != nil {
		t.Fatalf("bad result json: %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d: %+v", len(suggestions), suggestions)
	}
	if suggestions[0].ItemName != "wheat" || suggestions[0].NeedQuantity != 10 || suggestions[0].VendorID != "V123" {
		t.Errorf("unexpected suggestion: %+v", suggestions[0])
	}
}

func TestPlaceReorder(t *testing.T) {
	st := &fakeStore{}
	r := newFarmRegistry(t, st)

	out, err := r.Execute(context.Background(), "place_reorder", json.RawMessage(`{"farmer_id":"F001","item_name":"wheat","quantity":10}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	var res struct {
		Status       string  `json:"status"`
		OrderID      string  `json:"order_id"`
		ItemName     string  `json:"item_name"`
		Quantity     float64 `json:"quantity"`
		VendorID     string  `json:"vendor_id"`
		PricePerUnit float64 `json:"price_per_unit"`
	}
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatalf("bad result json: %v", err)
	}
	if res.Status != "ordered" || res.ItemName != "wheat" || res.Quantity != 10 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.VendorID != "V123" || res.PricePerUnit != 150 {
		t.Errorf("catalog vendor not attached: %+v", res)
	}
	if len(res.OrderID) != len("ord_")+8 || res.OrderID[:4] != "ord_" {
		t.Errorf("unexpected order id format: %q", res.OrderID)
	}
	if len(st.orders) != 1 {
		t.Fatalf("order not persisted, got %d", len(st.orders))
	}
	if st.orders[0].FarmerID != "F001" || st.orders[0].ItemName != "wheat" || st.orders[0].Quantity != 10 {
		t.Errorf("persisted order mismatch: %+v", st.orders[0])
	}
	if st.orders[0].Timestamp.IsZero() {
		t.Error("order timestamp not set")
	}
}

func TestPlaceReorderRejectsNonPositiveQuantity(t *testing.T) {
	st := &fakeStore{}
	r := newFarmRegistry(t, st)

	if _, err := r.Execute(context.Background(), "place_reorder", json.RawMessage(`{"farmer_id":"F001","item_name":"wheat","quantity":0}`)); err == nil {
		t.Fatal("expected error for zero quantity")
	}
	if len(st.orders) != 0 {
		t.Errorf("no order must be persisted, got %d", len(st.orders))
	}
}

func TestApplyScheme(t *testing.T) {
	st := &fakeStore{schemes: []domain.Scheme{
		{SchemeID: "PMKISAN", SchemeName: "PM-Kisan Samman Nidhi", CreatedAt: time.Now()},
	}}
	r := newFarmRegistry(t, st)

	out, err := r.Execute(context.Background(), "apply_scheme", json.RawMessage(`{"scheme_id":"PMKISAN","farmer_id":"F001"}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	var res struct {
		Status      string `json:"status"`
		ReferenceID string `json:"reference_id"`
		SchemeName  string `json:"scheme_name"`
	}
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatalf("bad result json: %v", err)
	}
	if res.Status != "applied" || res.SchemeName != "PM-Kisan Samman Nidhi" {
		t.Errorf("unexpected result: %+v", res)
	}
	const prefix = "PMKISAN-F001-"
	if len(res.ReferenceID) != len(prefix)+6 || res.ReferenceID[:len(prefix)] != prefix {
		t.Errorf("unexpected reference id format: %q", res.ReferenceID)
	}
	if len(st.applied) != 1 {
		t.Errorf("application not persisted")
	}
}

func TestApplySchemeUnknownID(t *testing.T) {
	r := newFarmRegistry(t, &fakeStore{})
	if _, err := r.Execute(context.Background(), "apply_scheme", json.RawMessage(`{"scheme_id":"NOPE","farmer_id":"F001"}`)); err == nil {
		t.Fatal("expected error for unknown scheme id")
	}
}

func TestMarketPriceDefaultMandi(t *testing.T) {
	r := newFarmRegistry(t, &fakeStore{})
	out, err := r.Execute(context.Background(), "market_price", json.RawMessage(`{"crop":"wheat"}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	var res struct {
		Mandi string  `json:"mandi"`
		Price float64 `json:"price"`
		Trend string  `json:"trend"`
	}
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatalf("bad result json: %v", err)
	}
	if res.Mandi != "Default Mandi" || res.Price != 2100 || res.Trend != "rising" {
		t.Errorf("unexpected result: %+v", res)
	}
}
