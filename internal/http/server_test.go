package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"khata/internal/auth"
	"khata/internal/events"
	"khata/internal/log"
	"khata/internal/metrics"
	"khata/internal/middleware/ratelimit"
	"khata/internal/services"
	"khata/internal/storage"
)

const (
	adminEmail    = "admin@khata.local"
	adminPassword = "secret123"
)

type testServer struct {
	t         *testing.T
	srv       *Server
	token     string
	productID int64
}

func newTestServer(t *testing.T, mutate func(*Options)) *testServer {
	t.Helper()
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(ctx, filepath.Join(t.TempDir(), "khata.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	m := metrics.New()
	svc := services.New(repo, events.Noop{}, m, auth.NewTokens("test-secret-key-0123456789", time.Hour))
	if err := svc.Auth.EnsureAdmin(ctx, adminEmail, adminPassword); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}

	opts := Options{
		Metrics:   m,
		Logger:    log.New(log.Config{Level: slog.LevelError, Output: io.Discard}),
		Ready:     repo.Ping,
		RateLimit: ratelimit.Config{RequestsPerSecond: 1000, Burst: 1000},
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv := NewServer(svc, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	pts, err := svc.ProductTypes.List(ctx)
	if err != nil || len(pts) == 0 {
		t.Fatalf("seeded product types: %v (%d)", err, len(pts))
	}
	return &testServer{t: t, srv: srv, productID: pts[0].ID}
}

func (ts *testServer) login() *testServer {
	ts.t.Helper()
	rr := ts.do(http.MethodPost, "/api/auth/login", `{"email":"`+adminEmail+`","password":"`+adminPassword+`"}`)
	if rr.Code != http.StatusOK {
		ts.t.Fatalf("login status=%d body=%s", rr.Code, rr.Body.String())
	}
	var tok tokenResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &tok); err != nil {
		ts.t.Fatalf("decode token: %v", err)
	}
	ts.token = tok.AccessToken
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	rr := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) expect(method, path, body string, status int) map[string]any {
	ts.t.Helper()
	rr := ts.do(method, path, body)
	if rr.Code != status {
		ts.t.Fatalf("%s %s: status=%d, want %d; body=%s", method, path, rr.Code, status, rr.Body.String())
	}
	out := map[string]any{}
	if rr.Body.Len() > 0 && strings.HasPrefix(strings.TrimSpace(rr.Body.String()), "{") {
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			ts.t.Fatalf("decode body: %v", err)
		}
	}
	return out
}

func (ts *testServer) list(path string) []map[string]any {
	ts.t.Helper()
	rr := ts.do(http.MethodGet, path, "")
	if rr.Code != http.StatusOK {
		ts.t.Fatalf("GET %s: status=%d body=%s", path, rr.Code, rr.Body.String())
	}
	var out []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		ts.t.Fatalf("decode list: %v", err)
	}
	return out
}

func idOf(t *testing.T, body map[string]any) string {
	t.Helper()
	id, ok := body["id"].(float64)
	if !ok {
		t.Fatalf("body has no id: %v", body)
	}
	return strconv.FormatInt(int64(id), 10)
}

func errorOf(body map[string]any) (kind, field string) {
	e, _ := body["error"].(map[string]any)
	kind, _ = e["kind"].(string)
	field, _ = e["field"].(string)
	return kind, field
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, nil)

	body := ts.expect(http.MethodGet, "/healthz", "", http.StatusOK)
	if body["status"] != "ok" {
		t.Errorf("healthz status = %v", body["status"])
	}
	body = ts.expect(http.MethodGet, "/readyz", "", http.StatusOK)
	checks, _ := body["checks"].(map[string]any)
	if checks["database"] != "ok" {
		t.Errorf("readyz database = %v", checks["database"])
	}

	down := newTestServer(t, func(o *Options) {
		o.Ready = func(context.Context) error { return errors.New("connection refused") }
	})
	body = down.expect(http.MethodGet, "/readyz", "", http.StatusServiceUnavailable)
	if body["status"] != "not_ready" {
		t.Errorf("readyz status = %v", body["status"])
	}
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	body := ts.expect(http.MethodGet, "/api/buyers", "", http.StatusUnauthorized)
	if kind, _ := errorOf(body); kind != KindUnauthorized {
		t.Errorf("kind = %q", kind)
	}

	body = ts.expect(http.MethodPost, "/api/auth/login", `{"email":"admin@khata.local","password":"wrong"}`, http.StatusUnauthorized)
	if kind, _ := errorOf(body); kind != KindUnauthorized {
		t.Errorf("kind = %q", kind)
	}

	body = ts.expect(http.MethodPost, "/api/auth/login", `{"password":"x"}`, http.StatusUnprocessableEntity)
	if _, field := errorOf(body); field != "email" {
		t.Errorf("field = %q", field)
	}

	// OAuth2 password form
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("username=admin%40khata.local&password="+adminPassword))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("form login status=%d body=%s", rr.Code, rr.Body.String())
	}
	var tok tokenResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &tok); err != nil || tok.AccessToken == "" || tok.TokenType != "bearer" {
		t.Fatalf("token response = %+v, %v", tok, err)
	}

	ts.token = tok.AccessToken
	body = ts.expect(http.MethodGet, "/api/auth/me", "", http.StatusOK)
	if body["email"] != adminEmail {
		t.Errorf("me email = %v", body["email"])
	}
	if _, leaked := body["hashed_password"]; leaked {
		t.Error("password hash leaked in /me")
	}

	body = ts.expect(http.MethodPost, "/api/auth/change-password", `{"current_password":"nope","new_password":"another1"}`, http.StatusUnprocessableEntity)
	if _, field := errorOf(body); field != "current_password" {
		t.Errorf("field = %q", field)
	}
	ts.expect(http.MethodPost, "/api/auth/change-password", `{"current_password":"`+adminPassword+`","new_password":"another1"}`, http.StatusOK)
	ts.expect(http.MethodPost, "/api/auth/login", `{"email":"admin@khata.local","password":"another1"}`, http.StatusOK)

	ts.token = "not-a-jwt"
	ts.expect(http.MethodGet, "/api/auth/me", "", http.StatusUnauthorized)
}

func TestBuyerLedgerFlow(t *testing.T) {
	ts := newTestServer(t, nil).login()

	buyer := ts.expect(http.MethodPost, "/api/buyers", `{"name":"Ramesh","phone":"98765","opening_balance":100}`, http.StatusCreated)
	buyerID := idOf(t, buyer)
	if buyer["opening_balance"] != "100.00" {
		t.Errorf("opening_balance = %v", buyer["opening_balance"])
	}

	sale := ts.expect(http.MethodPost, "/api/sales", `{
		"date": "2025-01-10",
		"buyer_id": `+buyerID+`,
		"payment_type": "Partial",
		"payment_received_now": "10",
		"sale_items": [{"product_type_id": `+strconv.FormatInt(ts.productID, 10)+`, "quantity": "2", "price_per_unit": 13}]
	}`, http.StatusCreated)
	saleID := idOf(t, sale)
	if sale["total_amount"] != "26.00" {
		t.Errorf("total_amount = %v", sale["total_amount"])
	}

	body := ts.expect(http.MethodGet, "/api/buyers/"+buyerID+"/outstanding", "", http.StatusOK)
	if body["outstanding_balance"] != "116.00" {
		t.Errorf("outstanding after sale = %v", body["outstanding_balance"])
	}

	receipt := ts.expect(http.MethodPost, "/api/buyers/"+buyerID+"/payments", `{"date":"2025-01-12","amount":"16","payment_method":"UPI"}`, http.StatusCreated)
	if receipt["outstanding_balance"] != "100.00" {
		t.Errorf("receipt outstanding = %v", receipt["outstanding_balance"])
	}
	paymentID := idOf(t, receipt)

	ledger := ts.expect(http.MethodGet, "/api/buyers/"+buyerID+"/ledger", "", http.StatusOK)
	entries, _ := ledger["entries"].([]any)
	if len(entries) != 3 {
		t.Fatalf("ledger entries = %d, want 3", len(entries))
	}
	if ledger["opening_balance"] != "100.00" || ledger["closing_balance"] != "100.00" {
		t.Errorf("ledger balances = %v / %v", ledger["opening_balance"], ledger["closing_balance"])
	}
	first, _ := entries[0].(map[string]any)
	if first["type"] != "SALE" || first["balance"] != "126.00" {
		t.Errorf("first entry = %v", first)
	}

	windowed := ts.expect(http.MethodGet, "/api/buyers/"+buyerID+"/ledger?start_date=2025-01-11", "", http.StatusOK)
	if windowed["opening_balance"] != "116.00" {
		t.Errorf("windowed opening = %v", windowed["opening_balance"])
	}
	ts.expect(http.MethodGet, "/api/buyers/"+buyerID+"/ledger?start_date=2025-02-01&end_date=2025-01-01", "", http.StatusUnprocessableEntity)

	if payments := ts.list("/api/buyers/" + buyerID + "/payments"); len(payments) != 2 {
		t.Errorf("payments = %d, want 2", len(payments))
	}

	other := idOf(t, ts.expect(http.MethodPost, "/api/buyers", `{"name":"Suresh"}`, http.StatusCreated))
	ts.expect(http.MethodDelete, "/api/buyers/"+other+"/payments/"+paymentID, "", http.StatusNotFound)

	ts.expect(http.MethodDelete, "/api/sales/"+saleID, "", http.StatusConflict)
	ts.expect(http.MethodDelete, "/api/buyers/"+buyerID+"/payments/"+paymentID, "", http.StatusNoContent)

	body = ts.expect(http.MethodGet, "/api/buyers/"+buyerID+"/outstanding", "", http.StatusOK)
	if body["outstanding_balance"] != "116.00" {
		t.Errorf("outstanding after delete = %v", body["outstanding_balance"])
	}

	balances := ts.list("/api/buyers/list")
	if len(balances) != 2 {
		t.Fatalf("buyers with outstanding = %d", len(balances))
	}

	found := ts.list("/api/buyers?search=rame")
	if len(found) != 1 || found[0]["name"] != "Ramesh" {
		t.Errorf("search result = %v", found)
	}

	updated := ts.expect(http.MethodPut, "/api/sales/"+saleID, `{"notes":"revised"}`, http.StatusOK)
	if updated["notes"] != "revised" || updated["total_amount"] != "26.00" {
		t.Errorf("updated sale = %v", updated)
	}
	if sales := ts.list("/api/sales?buyer_id=" + buyerID + "&payment_type=Partial"); len(sales) != 1 {
		t.Errorf("filtered sales = %d", len(sales))
	}
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, nil).login()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		kind   string
		field  string
	}{
		{"malformed json", http.MethodPost, "/api/buyers", `{"name":`, http.StatusBadRequest, KindBadRequest, ""},
		{"empty body", http.MethodPost, "/api/buyers", "", http.StatusBadRequest, KindBadRequest, ""},
		{"missing name", http.MethodPost, "/api/buyers", `{"name":"  "}`, http.StatusUnprocessableEntity, KindValidation, "name"},
		{"wrong type", http.MethodPost, "/api/buyers", `{"name":42}`, http.StatusUnprocessableEntity, KindValidation, "name"},
		{"bad amount", http.MethodPost, "/api/buyers", `{"name":"x","opening_balance":"abc"}`, http.StatusUnprocessableEntity, KindValidation, ""},
		{"no items", http.MethodPost, "/api/sales", `{"buyer_id":1,"sale_items":[]}`, http.StatusUnprocessableEntity, KindValidation, "sale_items"},
		{"unknown buyer", http.MethodGet, "/api/buyers/9999", "", http.StatusNotFound, KindNotFound, ""},
		{"bad path id", http.MethodGet, "/api/buyers/abc", "", http.StatusUnprocessableEntity, KindValidation, "id"},
		{"duplicate product type", http.MethodPost, "/api/product-types", `{"name":"lafa"}`, http.StatusConflict, KindConflict, ""},
		{"zero payment", http.MethodPost, "/api/buyers/1/payments", `{"amount":0}`, http.StatusUnprocessableEntity, KindValidation, "amount"},
		{"limit too large", http.MethodGet, "/api/sales?limit=501", "", http.StatusUnprocessableEntity, KindValidation, "limit"},
		{"bad date", http.MethodGet, "/api/purchases?start_date=01-02-2025", "", http.StatusUnprocessableEntity, KindValidation, "start_date"},
		{"bad category", http.MethodGet, "/api/expenses?category=Food", "", http.StatusUnprocessableEntity, KindValidation, "category"},
		{"months out of range", http.MethodGet, "/api/analytics/monthly-stats?months=25", "", http.StatusUnprocessableEntity, KindValidation, "months"},
		{"limit not a number", http.MethodGet, "/api/analytics/top-buyers?limit=abc", "", http.StatusUnprocessableEntity, KindValidation, "limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(tt.method, tt.path, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d; body=%s", rr.Code, tt.status, rr.Body.String())
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			kind, field := errorOf(body)
			if kind != tt.kind {
				t.Errorf("kind = %q, want %q", kind, tt.kind)
			}
			if tt.field != "" && field != tt.field {
				t.Errorf("field = %q, want %q", field, tt.field)
			}
		})
	}
}

func TestPurchasesExpensesAndAnalytics(t *testing.T) {
	ts := newTestServer(t, nil).login()

	purchase := ts.expect(http.MethodPost, "/api/purchases", `{
		"seller_name": "Kabir Traders",
		"quantity": "100",
		"price_per_unit": "18.00",
		"transport_service": "Tempo",
		"transport_cost": "44.20"
	}`, http.StatusCreated)
	if purchase["total_purchase_cost"] != "1844.20" {
		t.Errorf("total_purchase_cost = %v", purchase["total_purchase_cost"])
	}

	ts.expect(http.MethodPost, "/api/expenses", `{"category":"Rent","amount":"500"}`, http.StatusCreated)

	today := ts.expect(http.MethodGet, "/api/purchases/stats/today", "", http.StatusOK)
	if today["today_purchases"] != "1844.20" {
		t.Errorf("today_purchases = %v", today["today_purchases"])
	}
	today = ts.expect(http.MethodGet, "/api/expenses/stats/today", "", http.StatusOK)
	if today["today_expenses"] != "544.20" {
		t.Errorf("today_expenses = %v (rent plus transport)", today["today_expenses"])
	}
	today = ts.expect(http.MethodGet, "/api/sales/stats/today", "", http.StatusOK)
	if today["today_sales"] != "0.00" {
		t.Errorf("today_sales = %v", today["today_sales"])
	}

	byCategory := ts.list("/api/expenses/stats/by-category")
	if len(byCategory) != 2 {
		t.Errorf("by-category rows = %d, want 2", len(byCategory))
	}
	if rent := ts.list("/api/expenses?category=Rent"); len(rent) != 1 {
		t.Errorf("rent expenses = %d", len(rent))
	}

	summary := ts.expect(http.MethodGet, "/api/analytics/dashboard-summary", "", http.StatusOK)
	if summary["total_purchases"] != "1844.20" || summary["total_expenses"] != "544.20" {
		t.Errorf("summary = %v", summary)
	}
	if summary["total_profit"] != "-2388.40" {
		t.Errorf("total_profit = %v", summary["total_profit"])
	}

	rr := ts.do(http.MethodGet, "/api/analytics/monthly-stats?months=3", "")
	var months []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &months); err != nil || len(months) != 3 {
		t.Fatalf("monthly stats = %s (%v)", rr.Body.String(), err)
	}

	report := ts.expect(http.MethodGet, "/api/analytics/full-report?months=2", "", http.StatusOK)
	for _, key := range []string{"monthly_stats", "product_sales", "top_buyers"} {
		if _, ok := report[key].([]any); !ok {
			t.Errorf("full report %s = %v, want a list", key, report[key])
		}
	}
	if top := ts.list("/api/analytics/top-buyers?limit=5"); len(top) != 0 {
		t.Errorf("top buyers without buyers = %d", len(top))
	}
	if products := ts.list("/api/analytics/product-sales?start_date=2025-01-01"); len(products) != 0 {
		t.Errorf("product sales without sales = %d", len(products))
	}
}

func TestProductTypesCRUD(t *testing.T) {
	ts := newTestServer(t, nil).login()

	created := ts.expect(http.MethodPost, "/api/product-types", `{"name":"Teak","description":"Teak offcuts"}`, http.StatusCreated)
	id := idOf(t, created)

	renamed := ts.expect(http.MethodPut, "/api/product-types/"+id, `{"name":"Teak Wood"}`, http.StatusOK)
	if renamed["name"] != "Teak Wood" {
		t.Errorf("renamed = %v", renamed)
	}
	ts.expect(http.MethodGet, "/api/product-types/"+id, "", http.StatusOK)
	ts.expect(http.MethodDelete, "/api/product-types/"+id, "", http.StatusNoContent)
	ts.expect(http.MethodGet, "/api/product-types/"+id, "", http.StatusNotFound)
}

func TestMiddlewareChain(t *testing.T) {
	ts := newTestServer(t, func(o *Options) {
		o.CORSAllowedOrigins = []string{"http://localhost:5173"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/buyers", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Errorf("preflight allow origin = %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	rr = httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	if rr.Header().Get("X-Request-ID") != "req-abc" {
		t.Errorf("request id = %q", rr.Header().Get("X-Request-ID"))
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	rr = ts.do(http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `khata_http_requests_total{method="GET",route="GET /healthz",status="200"} 1`) {
		t.Errorf("metrics missing healthz sample:\n%s", rr.Body.String())
	}
}

func TestRateLimited(t *testing.T) {
	ts := newTestServer(t, func(o *Options) {
		o.RateLimit = ratelimit.Config{RequestsPerSecond: 1, Burst: 1}
	})

	ts.expect(http.MethodGet, "/healthz", "", http.StatusOK)
	rr := ts.do(http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q", rr.Header().Get("Retry-After"))
	}
	var body map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if kind, _ := errorOf(body); kind != KindRateLimited {
		t.Errorf("kind = %q", kind)
	}
}
