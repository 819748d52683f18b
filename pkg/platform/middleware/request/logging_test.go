package request

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, rec.Body.String())
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})))

	req := httptest.NewRequest(http.MethodPost, "/mint/eoa", nil)
	req.Header.Set(HeaderRequestID, "req-9")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, buf.String(), `"status":403`)
	assert.Contains(t, buf.String(), `"request_id":"req-9"`)
	assert.Contains(t, buf.String(), `"path":"/mint/eoa"`)
}

func TestContentTypeJSON(t *testing.T) {
	ok := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name        string
		method      string
		contentType string
		want        int
	}{
		{"json", http.MethodPost, "application/json", http.StatusNoContent},
		{"json with charset", http.MethodPost, "application/json; charset=utf-8", http.StatusNoContent},
		{"missing", http.MethodPost, "", http.StatusNoContent},
		{"form", http.MethodPost, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"get ignores header", http.MethodGet, "text/plain", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/mint/eoa", strings.NewReader(`{}`))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			ok.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
