package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ppob-wallet-ledger/internal/domain/idempotency"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	IdempotentReplayKey  = "idempotent_replay"
	idempotencyHitHeader = "X-Idempotency-Replayed"
	maxIdempotencyKeyLen = 128
)

// bodyRecorder tees the response body so it can be stored for replay.
type bodyRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *bodyRecorder) WriteString(s string) (int, error) {
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Keys are scoped to the caller and route. Server errors are not stored so the
// client can retry them. A store outage lets the request through.
func Idempotency(store idempotency.Store, ttl time.Duration, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			abortJSON(c, http.StatusBadRequest, "BAD_REQUEST", "Idempotency-Key is too long")
			return
		}

		scoped := c.Request.Method + " " + c.FullPath() + ":" + key
		if id, ok := CurrentIdentity(c); ok {
			scoped = id.UserID.String() + ":" + scoped
		}
		ctx := c.Request.Context()

		cached, err := store.Get(ctx, scoped)
		if err != nil {
			logger.Error("Failed to read idempotency key", "error", err, "correlation_id", GetCorrelationID(c))
			c.Next()
			return
		}
		if cached != nil {
			c.Set(IdempotentReplayKey, true)
			c.Header(idempotencyHitHeader, "true")
			c.Data(cached.StatusCode, "application/json; charset=utf-8", cached.Body)
			c.Abort()
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = recorder
		c.Next()

		status := recorder.Status()
		if status >= http.StatusInternalServerError {
			return
		}
		if err := store.Save(ctx, scoped, idempotency.CachedResponse{StatusCode: status, Body: recorder.body.Bytes()}, ttl); err != nil {
			logger.Error("Failed to save idempotency key", "error", err, "correlation_id", GetCorrelationID(c))
		}
	}
}
