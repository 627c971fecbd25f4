package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tradeops/riskgate/internal/model"
)

func newIdempotentRouter(store IdempotencyStore, calls *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &model.User{ID: "u1"})
		c.Next()
	})
	r.POST("/v1/orders", IdempotencyMiddleware(store), func(c *gin.Context) {
		*calls++
		c.JSON(http.StatusOK, gin.H{"order_ref": "ref-1", "calls": *calls})
	})
	return r
}

func post(r *gin.Engine, idemKey, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set(HeaderIdempotencyKey, idemKey)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestIdempotentReplayReturnsCachedResponse(t *testing.T) {
	calls := 0
	r := newIdempotentRouter(NewInMemIdempotencyStore(), &calls)

	first := post(r, "key-1", `{"symbol":"BTCUSDT"}`)
	if first.Code != http.StatusOK {
		t.Fatalf("first request: %d", first.Code)
	}
	second := post(r, "key-1", `{"symbol":"BTCUSDT"}`)
	if second.Code != http.StatusOK {
		t.Fatalf("replay: %d", second.Code)
	}
	if calls != 1 {
		t.Fatalf("handler must run once, ran %d times", calls)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replay must return the identical body: %q vs %q", first.Body.String(), second.Body.String())
	}
}

func TestIdempotentKeyWithDifferentPayloadConflicts(t *testing.T) {
	calls := 0
	r := newIdempotentRouter(NewInMemIdempotencyStore(), &calls)

	if rec := post(r, "key-1", `{"symbol":"BTCUSDT"}`); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec := post(r, "key-1", `{"symbol":"ETHUSDT"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("different payload under same key must 409, got %d", rec.Code)
	}
	if calls != 1 {
		t.Fatalf("conflicting request must not execute, calls=%d", calls)
	}
}

func TestInFlightKeyConflicts(t *testing.T) {
	store := NewInMemIdempotencyStore()
	// Simulate a concurrent in-flight request holding the lock.
	if _, hit := store.GetOrLock("u1:/v1/orders:key-1", "somehash"); hit {
		t.Fatal("expected fresh lock")
	}

	calls := 0
	r := newIdempotentRouter(store, &calls)
	rec := post(r, "key-1", `{"symbol":"BTCUSDT"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("in-flight key must 409, got %d", rec.Code)
	}
	if calls != 0 {
		t.Fatal("in-flight conflict must not execute the handler")
	}
}

func TestServerErrorUnlocksKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := NewInMemIdempotencyStore()
	fail := true
	calls := 0

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &model.User{ID: "u1"})
		c.Next()
	})
	r.POST("/v1/orders", IdempotencyMiddleware(store), func(c *gin.Context) {
		calls++
		if fail {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	if rec := post(r, "key-1", `{}`); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	// 5xx released the key: the retry executes and succeeds.
	fail = false
	if rec := post(r, "key-1", `{}`); rec.Code != http.StatusOK {
		t.Fatalf("retry after 5xx must execute, got %d", rec.Code)
	}
	if calls != 2 {
		t.Fatalf("expected 2 executions, got %d", calls)
	}
}

func TestMissingKeyBypassesIdempotency(t *testing.T) {
	calls := 0
	r := newIdempotentRouter(NewInMemIdempotencyStore(), &calls)

	post(r, "", `{}`)
	post(r, "", `{}`)
	if calls != 2 {
		t.Fatalf("requests without a key are independent, calls=%d", calls)
	}
}
