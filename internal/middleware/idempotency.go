package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradeops/riskgate/internal/model"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"

type IdempotencyRecord struct {
	Status      int
	Body        []byte
	RequestHash string
	CreatedAt   time.Time
	Processing  bool // in-flight marker, guards concurrent replays
}

type IdempotencyStore interface {
	// GetOrLock returns (record, true) if the key exists; (nil, false)
	// when the caller has newly locked it.
	GetOrLock(key, requestHash string) (*IdempotencyRecord, bool)
	Save(key string, status int, body []byte, requestHash string)
	Unlock(key string)
}

// InMemIdempotencyStore backs single-node setups; Redis/Postgres
// stores live in the repository package.
type InMemIdempotencyStore struct {
	mu      sync.RWMutex
	records map[string]*IdempotencyRecord
}

func NewInMemIdempotencyStore() *InMemIdempotencyStore {
	return &InMemIdempotencyStore{
		records: make(map[string]*IdempotencyRecord),
	}
}

func (s *InMemIdempotencyStore) GetOrLock(key, requestHash string) (*IdempotencyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok {
		return rec, true
	}

	s.records[key] = &IdempotencyRecord{
		RequestHash: requestHash,
		Processing:  true,
		CreatedAt:   time.Now(),
	}
	return nil, false
}

func (s *InMemIdempotencyStore) Save(key string, status int, body []byte, requestHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = &IdempotencyRecord{
		Status:      status,
		Body:        body,
		RequestHash: requestHash,
		CreatedAt:   time.Now(),
		Processing:  false,
	}
}

func (s *InMemIdempotencyStore) Unlock(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
}

// IdempotencyMiddleware makes execution-affecting endpoints replay-safe:
// the same key with an equivalent payload returns the original response
// without re-executing side effects; the same key with a different
// payload is a conflict.
func IdempotencyMiddleware(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		idemKey := c.GetHeader(HeaderIdempotencyKey)
		if idemKey == "" {
			c.Next()
			return
		}
		if len(idemKey) > 128 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "idempotency key too long (max 128 chars)"})
			c.Abort()
			return
		}

		userVal, exists := c.Get(ContextUserKey)
		if !exists {
			c.Next()
			return
		}
		user := userVal.(*model.User)

		var reqBody []byte
		if c.Request.Body != nil {
			reqBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(reqBody))
		}
		digest := sha256.Sum256(reqBody)
		requestHash := hex.EncodeToString(digest[:])

		fullKey := user.ID + ":" + c.FullPath() + ":" + idemKey

		record, hit := store.GetOrLock(fullKey, requestHash)
		if hit {
			if record.Processing {
				c.JSON(http.StatusConflict, gin.H{"error": "request in progress"})
				c.Abort()
				return
			}
			if record.RequestHash != requestHash {
				c.JSON(http.StatusConflict, gin.H{"error": "idempotency key already used with different payload"})
				c.Abort()
				return
			}
			c.Data(record.Status, "application/json; charset=utf-8", record.Body)
			c.Abort()
			return
		}

		w := &responseBodyWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		// 5xx responses unlock the key so the caller may retry;
		// everything else is cached as the canonical outcome.
		if c.Writer.Status() < 500 {
			store.Save(fullKey, c.Writer.Status(), w.body, requestHash)
		} else {
			store.Unlock(fullKey)
		}
	}
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *responseBodyWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}
