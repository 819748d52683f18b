package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "mintgate/pkg/domain-errors"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "internal_error", body["error"])
		_, ok := body["error_description"]
		assert.False(t, ok)
	})

	t.Run("admission denial keeps its reason", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeWalletLocked, "wallet has a mint in flight"))

		assert.Equal(t, http.StatusForbidden, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "wallet_locked", body["error"])
		assert.Equal(t, "wallet has a mint in flight", body["error_description"])
	})

	t.Run("provider unavailable is 503", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeProviderUnavailable, "try later"))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("conflict is duplicate entry", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeConflict, "token already assigned"))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "duplicate_entry", decodeBody(t, w)["error"])
	})

	t.Run("plain error is internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("boom"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

type signRequest struct {
	Address string `json:"address"`
}

func (r *signRequest) Normalize() { r.Address = strings.ToLower(strings.TrimSpace(r.Address)) }

func (r *signRequest) Validate() error {
	if r.Address == "" {
		return errors.New("address is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("normalizes and validates", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/mint/eoa", strings.NewReader(`{"address":" 0xABC "}`))
		w := httptest.NewRecorder()
		req, ok := DecodeAndPrepare[signRequest](w, r, logger, r.Context(), "req-1")
		require.True(t, ok)
		assert.Equal(t, "0xabc", req.Address)
	})

	t.Run("validation failure is 400", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/mint/eoa", strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		_, ok := DecodeAndPrepare[signRequest](w, r, logger, r.Context(), "req-1")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "validation_error", decodeBody(t, w)["error"])
	})

	t.Run("malformed json is 400", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/mint/eoa", strings.NewReader(`{`))
		w := httptest.NewRecorder()
		_, ok := DecodeJSON[signRequest](w, r, logger, r.Context(), "req-1")
		assert.False(t, ok)
		assert.Equal(t, "bad_request", decodeBody(t, w)["error"])
	})
}
