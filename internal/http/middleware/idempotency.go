package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/http/response"
)

const (
	// IdempotencyKeyHeader — заголовок с ключом идемпотентности.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader выставляется, когда ответ взят из сохранённой записи.
	IdempotentReplayHeader = "Idempotent-Replayed"

	DefaultIdempotencyTTL = 24 * time.Hour
	maxIdempotencyKeyLen  = 255
)

// responseRecorder дублирует тело ответа, чтобы сохранить его для повторов.
type responseRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *responseRecorder) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *responseRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency делает POST-запросы повторяемыми по заголовку Idempotency-Key.
// Тот же ключ с тем же телом возвращает сохранённый ответ. Другое тело под тем же
// ключом и повтор во время обработки первого запроса получают 409.
// Запрос без ключа проходит как есть.
func Idempotency(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	logger = logger.WithField("component", "idempotency")

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if key == "" || repo == nil {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			verr := &domain.ValidationError{}
			verr.Add(IdempotencyKeyHeader, "Idempotency key must have a maximum of 255 characters")
			response.RespondError(c, verr)
			c.Abort()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.RespondStatus(c, http.StatusBadRequest, "Failed to read request body")
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ctx := c.Request.Context()
		hash := requestHash(c.Request.Method, c.FullPath(), body)
		record, err := repo.CreateProcessing(ctx, key, hash, time.Now().UTC().Add(ttl))
		if err != nil {
			replay(c, logger, key, record, err)
			c.Abort()
			return
		}

		recorder := &responseRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		status := recorder.Status()
		stored := recorder.body.Bytes()
		if status < http.StatusBadRequest {
			err = repo.MarkDone(ctx, key, stored, status)
		} else {
			err = repo.MarkFailed(ctx, key, stored, status)
		}
		if err != nil {
			logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
		}
	}
}

func replay(c *gin.Context, logger *log.Entry, key string, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		response.RespondStatus(c, http.StatusConflict, "Idempotency key is already used with a different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		if !record.Replayable() {
			response.RespondStatus(c, http.StatusConflict, "A request with the same idempotency key is already being processed")
			return
		}
		status := record.HTTPStatus
		if status == 0 {
			status = http.StatusOK
		}
		c.Header(IdempotentReplayHeader, "true")
		c.Data(status, "application/json; charset=utf-8", record.ResponseBody)
	default:
		logger.WithError(createErr).WithField("idempotency_key", key).Error("failed to register idempotency key")
		response.RespondStatus(c, http.StatusInternalServerError, "Internal server error")
	}
}

func requestHash(method, route string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(route))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
