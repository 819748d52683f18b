package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintgate/internal/mint/metrics"
	"mintgate/internal/mint/models"
	"mintgate/pkg/platform/circuit"
	"mintgate/pkg/platform/sentinel"
)

const (
	collection = "0xc011ec7100000000000000000000000000000001"
	reference  = "7b0a3c52-5f6a-4a4f-9a39-2f5b8f0c8d11"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:   srv.URL,
		APIKey:    "secret",
		ChainName: "imtbl-zkevm-testnet",
		Timeout:   2 * time.Second,
	}, opts...)
}

func TestCreateMintRequest(t *testing.T) {
	var got createMintRequestBody
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chains/imtbl-zkevm-testnet/collections/"+collection+"/nfts/mint-requests", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get(HeaderAPIKey))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	})

	err := client.CreateMintRequest(context.Background(), models.MintRequest{
		CollectionAddress: collection,
		OwnerAddress:      "0xa11ce00000000000000000000000000000000001",
		ReferenceID:       reference,
		TokenID:           6,
		Metadata:          &models.NFTMetadata{Name: "Token #6"},
	})
	require.NoError(t, err)
	require.Len(t, got.Assets, 1)
	assert.Equal(t, "6", got.Assets[0].TokenID)
	assert.Equal(t, reference, got.Assets[0].ReferenceID)
	require.NotNil(t, got.Assets[0].Metadata)
	assert.Equal(t, "Token #6", got.Assets[0].Metadata.Name)
}

func TestCreateMintRequestConflictIsAccepted(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	assert.NoError(t, client.CreateMintRequest(context.Background(), models.MintRequest{CollectionAddress: collection, ReferenceID: reference}))
}

func TestCreateMintRequestClientError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "token_id already minted", http.StatusBadRequest)
	})
	err := client.CreateMintRequest(context.Background(), models.MintRequest{CollectionAddress: collection, ReferenceID: reference})
	require.Error(t, err)
	assert.NotErrorIs(t, err, sentinel.ErrUnavailable)
	assert.Contains(t, err.Error(), "400")
	assert.True(t, client.Available(), "a 4xx is an answer, not an outage")
}

func TestGetMintRequest(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/v1/chains/imtbl-zkevm-testnet/collections/"+collection+"/nfts/mint-requests/"+reference, r.URL.Path)
			_, _ = w.Write([]byte(`{"result":[{"reference_id":"` + reference + `","status":"succeeded","token_id":"6","owner_address":"0xA11CE00000000000000000000000000000000001"}]}`))
		})
		status, err := client.GetMintRequest(context.Background(), collection, reference)
		require.NoError(t, err)
		assert.Equal(t, models.StatusSucceeded, status.Status)
		assert.Equal(t, "6", status.TokenID)
		assert.Equal(t, "0xa11ce00000000000000000000000000000000001", status.OwnerAddress)
	})

	t.Run("empty result", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"result":[]}`))
		})
		_, err := client.GetMintRequest(context.Background(), collection, reference)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("404", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		_, err := client.GetMintRequest(context.Background(), collection, reference)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("unknown status", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"result":[{"status":"exploded"}]}`))
		})
		_, err := client.GetMintRequest(context.Background(), collection, reference)
		assert.Error(t, err)
	})
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	},
		WithBreaker(circuit.New("immutable", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))),
		WithMetrics(m),
	)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := client.GetMintRequest(ctx, collection, reference)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	}
	assert.False(t, client.Available())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCircuitOpen))

	_, err := client.GetMintRequest(ctx, collection, reference)
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.Equal(t, int32(2), calls.Load(), "open circuit fails fast without calling out")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCallsTotal.WithLabelValues(opGet, "circuit_open")))
}
