package order_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/MikeMC777/ecom-backend/internal/auth"
	"github.com/MikeMC777/ecom-backend/internal/memory"
	"github.com/MikeMC777/ecom-backend/internal/order"
	"github.com/MikeMC777/ecom-backend/internal/redisx"
	"github.com/MikeMC777/ecom-backend/internal/user"
)

func init() { gin.SetMode(gin.TestMode) }

func asUser(u *user.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth.SetUser(c, u)
		c.Next()
	}
}

// newOrderRouter wires the order routes with a fixed authenticated user.
func newOrderRouter(store *memory.Store, u *user.User) *gin.Engine {
	cache := redisx.NewOrderCache(nil)
	r := gin.New()
	g := r.Group("/orders", asUser(u))
	g.POST("", order.CreateHandler(store.Orders()))
	g.GET("", order.ListMineHandler(store.Orders()))
	g.GET("/:id", order.GetHandler(store.Orders(), cache))
	g.POST("/:id/cancel", order.CancelHandler(store.Orders(), cache))
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func testUser(admin bool) *user.User {
	return &user.User{ID: uuid.NewString(), Email: uuid.NewString() + "@example.com", IsActive: true, IsSuperuser: admin}
}

func TestCreateOrderHandler(t *testing.T) {
	store := memory.NewStore()
	p := seedProduct(t, store, "25.00", 10)
	u := testUser(false)
	r := newOrderRouter(store, u)

	w := doJSON(t, r, http.MethodPost, "/orders", order.CreateOrderRequest{
		Items: []order.CreateOrderItem{{ProductID: p.ID, Quantity: 2}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var out order.OrderOut
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.UserID != u.ID || out.Status != order.StatusPending || len(out.Items) != 1 {
		t.Fatalf("unexpected order: %+v", out)
	}
	if got := stockOf(t, store, p.ID); got != 8 {
		t.Fatalf("stock=%d, esperaba 8", got)
	}
}

func TestCreateOrderHandler_BadInput(t *testing.T) {
	store := memory.NewStore()
	p := seedProduct(t, store, "5.00", 3)
	r := newOrderRouter(store, testUser(false))

	cases := []struct {
		name string
		body any
		want int
	}{
		{"empty items", order.CreateOrderRequest{}, http.StatusBadRequest},
		{"zero quantity", order.CreateOrderRequest{Items: []order.CreateOrderItem{{ProductID: p.ID, Quantity: 0}}}, http.StatusBadRequest},
		{"negative quantity", order.CreateOrderRequest{Items: []order.CreateOrderItem{{ProductID: p.ID, Quantity: -1}}}, http.StatusBadRequest},
		{"missing product id", order.CreateOrderRequest{Items: []order.CreateOrderItem{{Quantity: 1}}}, http.StatusBadRequest},
		{"unknown product", order.CreateOrderRequest{Items: []order.CreateOrderItem{{ProductID: uuid.NewString(), Quantity: 1}}}, http.StatusBadRequest},
		{"insufficient stock", order.CreateOrderRequest{Items: []order.CreateOrderItem{{ProductID: p.ID, Quantity: 99}}}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/orders", tc.body)
			if w.Code != tc.want {
				t.Fatalf("status=%d, esperaba %d (body=%s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
	if got := stockOf(t, store, p.ID); got != 3 {
		t.Fatalf("rejected requests touched stock: %d", got)
	}
}

func TestGetOrderHandler_Authz(t *testing.T) {
	store := memory.NewStore()
	p := seedProduct(t, store, "5.00", 10)
	owner := testUser(false)

	o, _, err := store.Orders().Place(context.Background(), owner.ID, []order.Line{{ProductID: p.ID, Quantity: 1}})
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	// owner sees it
	w := doJSON(t, newOrderRouter(store, owner), http.MethodGet, "/orders/"+o.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("owner: status=%d", w.Code)
	}

	// stranger gets 403
	w = doJSON(t, newOrderRouter(store, testUser(false)), http.MethodGet, "/orders/"+o.ID, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("stranger: status=%d", w.Code)
	}

	// admin sees it
	w = doJSON(t, newOrderRouter(store, testUser(true)), http.MethodGet, "/orders/"+o.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin: status=%d", w.Code)
	}

	// unknown id
	w = doJSON(t, newOrderRouter(store, owner), http.MethodGet, "/orders/"+uuid.NewString(), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing: status=%d", w.Code)
	}
}

func TestCancelOrderHandler(t *testing.T) {
	store := memory.NewStore()
	p := seedProduct(t, store, "5.00", 10)
	owner := testUser(false)
	r := newOrderRouter(store, owner)

	o, _, err := store.Orders().Place(context.Background(), owner.ID, []order.Line{{ProductID: p.ID, Quantity: 3}})
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	// stranger cannot cancel
	w := doJSON(t, newOrderRouter(store, testUser(false)), http.MethodPost, fmt.Sprintf("/orders/%s/cancel", o.ID), nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("stranger: status=%d", w.Code)
	}
	if got := stockOf(t, store, p.ID); got != 7 {
		t.Fatalf("forbidden cancel touched stock: %d", got)
	}

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/orders/%s/cancel", o.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: status=%d body=%s", w.Code, w.Body.String())
	}
	var out order.OrderOut
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Status != order.StatusCancelled {
		t.Fatalf("status=%s", out.Status)
	}
	if got := stockOf(t, store, p.ID); got != 10 {
		t.Fatalf("stock=%d, esperaba 10", got)
	}

	// idempotence is not a thing here: the second cancel conflicts
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/orders/%s/cancel", o.ID), nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("second cancel: status=%d", w.Code)
	}
}

func TestListMineHandler_Isolation(t *testing.T) {
	store := memory.NewStore()
	p := seedProduct(t, store, "1.00", 100)
	alice := testUser(false)
	bob := testUser(false)

	for i := 0; i < 2; i++ {
		if _, _, err := store.Orders().Place(context.Background(), alice.ID, []order.Line{{ProductID: p.ID, Quantity: 1}}); err != nil {
			t.Fatalf("place: %v", err)
		}
	}
	if _, _, err := store.Orders().Place(context.Background(), bob.ID, []order.Line{{ProductID: p.ID, Quantity: 1}}); err != nil {
		t.Fatalf("place: %v", err)
	}

	w := doJSON(t, newOrderRouter(store, alice), http.MethodGet, "/orders", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var got []order.Order
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d, esperaba 2", len(got))
	}
	for _, o := range got {
		if o.UserID != alice.ID {
			t.Fatalf("orden ajena en el listado: %+v", o)
		}
	}
}

func TestListMineHandler_EmptyIsArray(t *testing.T) {
	store := memory.NewStore()
	w := doJSON(t, newOrderRouter(store, testUser(false)), http.MethodGet, "/orders", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if body := w.Body.String(); body != "[]" {
		t.Fatalf("body=%q, esperaba []", body)
	}
}
