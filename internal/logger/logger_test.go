package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestContextLoggerCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithFields(ctx, map[string]interface{}{"user_id": "u1"})
	Info(ctx).Msg("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "u1", entry["user_id"])
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "req-1", RequestID(ctx))
}

func TestGinMiddlewareSetsRequestID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, RequestID(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc", w.Body.String())
	assert.Contains(t, buf.String(), "request completed")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestGormLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	ctx := context.Background()
	stmt := func() (string, int64) { return "SELECT 1", 1 }

	quiet := NewGormLogger("history_db", "info", time.Second)
	quiet.Trace(ctx, time.Now(), stmt, nil)
	quiet.Trace(ctx, time.Now(), stmt, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String(), "fast statements and missing records stay quiet")

	quiet.Trace(ctx, time.Now().Add(-2*time.Second), stmt, nil)
	assert.Contains(t, buf.String(), "slow db statement")
	assert.Contains(t, buf.String(), `"component":"history_db"`)

	buf.Reset()
	NewGormLogger("history_db", "error", 0).Trace(ctx, time.Now(), stmt, errors.New("boom"))
	assert.Contains(t, buf.String(), "db statement failed")
	assert.Contains(t, buf.String(), "boom")

	buf.Reset()
	NewGormLogger("history_db", "debug", 0).Trace(ctx, time.Now(), stmt, nil)
	assert.Contains(t, buf.String(), "SELECT 1")

	buf.Reset()
	silent := NewGormLogger("history_db", "debug", 0).LogMode(gormlogger.Silent)
	silent.Trace(ctx, time.Now(), stmt, errors.New("boom"))
	silent.Error(ctx, "ignored %d", 1)
	assert.Empty(t, buf.String())
}
