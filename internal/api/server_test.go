package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/menu-crawler/internal/config"
	"github.com/JakeFAU/menu-crawler/internal/menu"
	"github.com/JakeFAU/menu-crawler/internal/storage/postgres"
)

type fakeBackend struct {
	mu          sync.Mutex
	restaurants []menu.Restaurant
	items       map[menu.Collection][]menu.CatalogItem
	cart        []menu.CartLine
	runs        []menu.RunSummary
	pingErr     error
	listErr     error
	lastLimit   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		restaurants: []menu.Restaurant{{ID: 10, Name: "Кофемания Арбат", Address: "Арбат, 19"}},
		items: map[menu.Collection][]menu.CatalogItem{
			menu.CollectionMenu: {
				{ID: 1, RestaurantID: 10, CategoryID: 3, Category: "Завтраки", Name: "Сырники", Price: "1 250 ₽"},
				{ID: 2, RestaurantID: 10, CategoryID: 3, Category: "Завтраки", Name: "Каша", Price: "по запросу"},
			},
			menu.CollectionWine: {
				{ID: 7, RestaurantID: 10, CategoryID: 9, Category: "Красное", Name: "Кьянти", Price: "900 ₽"},
			},
		},
	}
}

func (f *fakeBackend) ListRestaurants(context.Context) ([]menu.Restaurant, error) {
	return f.restaurants, f.listErr
}

func (f *fakeBackend) GetRestaurant(_ context.Context, id int64) (menu.Restaurant, error) {
	for _, r := range f.restaurants {
		if r.ID == id {
			return r, nil
		}
	}
	return menu.Restaurant{}, postgres.ErrNotFound
}

func (f *fakeBackend) ListCategories(_ context.Context, c menu.Collection, restaurantID int64) ([]menu.CategorySummary, error) {
	counts := map[int]*menu.CategorySummary{}
	var out []menu.CategorySummary
	for _, item := range f.items[c] {
		if item.RestaurantID != restaurantID {
			continue
		}
		if cs, ok := counts[item.CategoryID]; ok {
			cs.Items++
			continue
		}
		counts[item.CategoryID] = &menu.CategorySummary{ID: item.CategoryID, Name: item.Category, Items: 1}
	}
	for _, cs := range counts {
		out = append(out, *cs)
	}
	return out, nil
}

func (f *fakeBackend) ListItems(_ context.Context, c menu.Collection, restaurantID int64, categoryID int) ([]menu.CatalogItem, error) {
	var out []menu.CatalogItem
	for _, item := range f.items[c] {
		if item.RestaurantID == restaurantID && item.CategoryID == categoryID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeBackend) GetItem(_ context.Context, c menu.Collection, id, restaurantID int64) (menu.CatalogItem, error) {
	for _, item := range f.items[c] {
		if item.ID == id && (restaurantID == 0 || item.RestaurantID == restaurantID) {
			return item, nil
		}
	}
	return menu.CatalogItem{}, postgres.ErrNotFound
}

func (f *fakeBackend) AddToCart(_ context.Context, line menu.CartLine) (menu.CartLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.cart {
		c := &f.cart[i]
		if c.UserID == line.UserID && c.ItemID == line.ItemID && c.RestaurantID == line.RestaurantID && c.IsWine == line.IsWine {
			c.Count++
			return *c, nil
		}
	}
	f.cart = append(f.cart, line)
	return line, nil
}

func (f *fakeBackend) ListCart(_ context.Context, userID int64) ([]menu.CartLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []menu.CartLine
	for _, c := range f.cart {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeBackend) ClearCart(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.cart[:0]
	for _, c := range f.cart {
		if c.UserID != userID {
			kept = append(kept, c)
		}
	}
	f.cart = kept
	return nil
}

func (f *fakeBackend) Checkout(ctx context.Context, userID int64) (menu.Order, error) {
	lines, _ := f.ListCart(ctx, userID)
	if len(lines) == 0 {
		return menu.Order{}, postgres.ErrEmptyCart
	}
	_ = f.ClearCart(ctx, userID)
	return menu.Order{
		ID:         "order-1",
		UserID:     userID,
		Lines:      lines,
		TotalMinor: menu.CartTotal(lines),
		CreatedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeBackend) ListRuns(_ context.Context, limit int) ([]menu.RunSummary, error) {
	f.lastLimit = limit
	return f.runs, nil
}

func (f *fakeBackend) Ping(context.Context) error {
	return f.pingErr
}

type fakeTrigger struct {
	pending bool
	running bool
}

func (f *fakeTrigger) Trigger() bool {
	if f.pending {
		return false
	}
	f.pending = true
	return true
}

func (f *fakeTrigger) Running() bool { return f.running }

func newTestServer(backend Backend, trigger Trigger, mutate ...func(*config.Config)) *Server {
	cfg := config.Config{}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewServer(backend, trigger, cfg, zap.NewNop())
}

func do(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestServer_HealthAndReadiness(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	s := newTestServer(backend, nil)

	rec := do(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "01890a5d-ac96-774b-bcce-b302099a8057")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, "01890a5d-ac96-774b-bcce-b302099a8057", rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "<script>")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.NotEqual(t, "<script>", rec.Header().Get("X-Request-ID"))

	rec = do(t, s, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	backend.pingErr = errors.New("connection refused")
	rec = do(t, s, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	s := newTestServer(newFakeBackend(), nil)
	do(t, s, http.MethodGet, "/healthz", nil)
	rec := do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_Restaurants(t *testing.T) {
	t.Parallel()

	s := newTestServer(newFakeBackend(), nil)

	rec := do(t, s, http.MethodGet, "/v1/restaurants", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[map[string][]menu.Restaurant](t, rec)
	require.Len(t, list["restaurants"], 1)
	require.Equal(t, "Кофемания Арбат", list["restaurants"][0].Name)

	rec = do(t, s, http.MethodGet, "/v1/restaurants/10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(10), decode[menu.Restaurant](t, rec).ID)

	rec = do(t, s, http.MethodGet, "/v1/restaurants/99", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/restaurants/abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ListRestaurantsFailure(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.listErr = errors.New("pool closed")
	rec := do(t, newTestServer(backend, nil), http.MethodGet, "/v1/restaurants", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_CategoriesAndItems(t *testing.T) {
	t.Parallel()

	s := newTestServer(newFakeBackend(), nil)

	rec := do(t, s, http.MethodGet, "/v1/restaurants/10/menu/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cats := decode[map[string][]menu.CategorySummary](t, rec)["categories"]
	require.Equal(t, []menu.CategorySummary{{ID: 3, Name: "Завтраки", Items: 2}}, cats)

	rec = do(t, s, http.MethodGet, "/v1/restaurants/10/vine_card/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[map[string][]menu.CategorySummary](t, rec)["categories"], 1)

	rec = do(t, s, http.MethodGet, "/v1/restaurants/10/desserts/categories", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/restaurants/10/menu/categories/3/items", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[map[string][]map[string]any](t, rec)["items"]
	require.Len(t, items, 2)
	require.Equal(t, "Сырники", items[0]["name"])
	require.InDelta(t, 125000, items[0]["price_minor"], 0)
	require.Nil(t, items[1]["price_minor"])

	rec = do(t, s, http.MethodGet, "/v1/restaurants/10/menu/categories/x/items", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_GetItem(t *testing.T) {
	t.Parallel()

	s := newTestServer(newFakeBackend(), nil)

	rec := do(t, s, http.MethodGet, "/v1/wine/items/7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	item := decode[map[string]any](t, rec)
	require.Equal(t, "Кьянти", item["name"])
	require.InDelta(t, 90000, item["price_minor"], 0)

	rec = do(t, s, http.MethodGet, "/v1/menu/items/1?restaurant_id=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/menu/items/1?restaurant_id=11", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/menu/items/1?restaurant_id=bad", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_CartFlow(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	s := newTestServer(backend, nil)

	body := []byte(`{"item_id":1,"restaurant_id":10}`)
	rec := do(t, s, http.MethodPost, "/v1/users/42/cart", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	line := decode[menu.CartLine](t, rec)
	require.Equal(t, "Сырники", line.Name)
	require.Equal(t, int64(125000), line.PriceMinor)
	require.Equal(t, 1, line.Count)

	rec = do(t, s, http.MethodPost, "/v1/users/42/cart", body)
	require.Equal(t, 2, decode[menu.CartLine](t, rec).Count)

	rec = do(t, s, http.MethodPost, "/v1/users/42/cart", []byte(`{"item_id":7,"restaurant_id":10,"is_wine":true}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/users/42/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cart := decode[struct {
		Items []menu.CartLine `json:"items"`
		Total int64           `json:"total"`
	}](t, rec)
	require.Len(t, cart.Items, 2)
	require.Equal(t, int64(2*125000+90000), cart.Total)

	rec = do(t, s, http.MethodPost, "/v1/users/42/checkout", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	order := decode[menu.Order](t, rec)
	require.Equal(t, int64(340000), order.TotalMinor)
	require.Len(t, order.Lines, 2)

	rec = do(t, s, http.MethodPost, "/v1/users/42/checkout", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_AddToCartValidation(t *testing.T) {
	t.Parallel()

	s := newTestServer(newFakeBackend(), nil)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{name: "invalid json", path: "/v1/users/1/cart", body: "{", want: http.StatusBadRequest},
		{name: "missing ids", path: "/v1/users/1/cart", body: `{"item_id":1}`, want: http.StatusBadRequest},
		{name: "bad user", path: "/v1/users/zero/cart", body: `{"item_id":1,"restaurant_id":10}`, want: http.StatusBadRequest},
		{name: "unknown item", path: "/v1/users/1/cart", body: `{"item_id":555,"restaurant_id":10}`, want: http.StatusNotFound},
		{name: "no price", path: "/v1/users/1/cart", body: `{"item_id":2,"restaurant_id":10}`, want: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, s, http.MethodPost, tt.path, []byte(tt.body))
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_ClearCart(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.cart = []menu.CartLine{{UserID: 5, ItemID: 1, RestaurantID: 10, Count: 1}, {UserID: 6, ItemID: 1, RestaurantID: 10, Count: 1}}
	s := newTestServer(backend, nil)

	rec := do(t, s, http.MethodDelete, "/v1/users/5/cart", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, backend.cart, 1)
	require.Equal(t, int64(6), backend.cart[0].UserID)
}

func TestServer_Runs(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.runs = []menu.RunSummary{{RunID: "run-2", Status: menu.RunSuccess}, {RunID: "run-1", Status: menu.RunPartial}}
	trigger := &fakeTrigger{running: true}
	s := newTestServer(backend, trigger)
	s.SetProgress(func() []int64 { return []int64{4} })

	rec := do(t, s, http.MethodGet, "/v1/runs?limit=1000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, maxRunsLimit, backend.lastLimit)
	body := decode[struct {
		Runs       []menu.RunSummary `json:"runs"`
		Running    bool              `json:"running"`
		InProgress []int64           `json:"in_progress"`
	}](t, rec)
	require.Len(t, body.Runs, 2)
	require.True(t, body.Running)
	require.Equal(t, []int64{4}, body.InProgress)

	s.SetProgress(func() []int64 { return nil })
	rec = do(t, s, http.MethodGet, "/v1/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, postgres.DefaultRunsLimit, backend.lastLimit)
	require.Contains(t, rec.Body.String(), `"in_progress":[]`)

	rec = do(t, s, http.MethodGet, "/v1/runs?limit=-1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "queued", decode[map[string]any](t, rec)["status"])

	rec = do(t, s, http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "already_queued", decode[map[string]any](t, rec)["status"])
}

func TestServer_TriggerWithoutScheduler(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer(newFakeBackend(), nil), http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_APIKey(t *testing.T) {
	t.Parallel()

	s := newTestServer(newFakeBackend(), nil, func(c *config.Config) {
		c.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	})

	rec := do(t, s, http.MethodGet, "/v1/restaurants", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/restaurants", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/restaurants?api_key=secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code, "probes stay open")
}

func TestServer_CORS(t *testing.T) {
	t.Parallel()

	s := newTestServer(newFakeBackend(), nil, func(c *config.Config) {
		c.Server.CORSAllowedOrigins = []string{"https://bot.example.com"}
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/restaurants", nil)
	req.Header.Set("Origin", "https://bot.example.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, "https://bot.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/v1/restaurants", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer(panicBackend{newFakeBackend()}, nil), http.MethodGet, "/v1/restaurants", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

type panicBackend struct{ *fakeBackend }

func (panicBackend) ListRestaurants(context.Context) ([]menu.Restaurant, error) {
	panic("nil map")
}
