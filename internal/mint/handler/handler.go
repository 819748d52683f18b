// Package handler exposes the mint engine over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"mintgate/internal/identity/wallet"
	"mintgate/internal/mint/models"
	dErrors "mintgate/pkg/domain-errors"
	"mintgate/pkg/platform/httputil"
	"mintgate/pkg/platform/middleware/auth"
	"mintgate/pkg/platform/middleware/request"
	"mintgate/pkg/requestcontext"
)

// Service is the part of the mint engine the HTTP layer calls.
type Service interface {
	AdmitMint(ctx context.Context, wallet string, now time.Time) (*models.Admission, error)
	Config(ctx context.Context) (*models.CollectionConfig, error)
	Eligibility(ctx context.Context, wallet string, now time.Time) (*models.Eligibility, error)
	MintRequest(ctx context.Context, referenceID string) (*models.ProviderStatus, error)
}

// SignatureVerifier recovers the wallet that signed the EOA mint message.
type SignatureVerifier interface {
	Message() string
	RecoverAddress(signature string) (string, error)
}

// Handler serves the public mint endpoints.
type Handler struct {
	service   Service
	signature SignatureVerifier
	passport  auth.PassportVerifier
	logger    *slog.Logger
	mintLimit func(http.Handler) http.Handler
	readLimit func(http.Handler) http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithRateLimits wraps the mint and read routes in the given middleware. Either may be nil.
func WithRateLimits(mint, read func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.mintLimit = mint
		h.readLimit = read
	}
}

// New creates a mint Handler. passport may be nil, which disables /mint/passport.
func New(service Service, signature SignatureVerifier, passport auth.PassportVerifier, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		service:   service,
		signature: signature,
		passport:  passport,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the mint routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.mintLimit != nil {
			r.Use(h.mintLimit)
		}
		r.Use(request.ContentTypeJSON)
		if h.passport != nil {
			r.With(auth.RequirePassport(h.passport, h.logger)).Post("/mint/passport", h.HandleMintPassport)
		}
		r.Post("/mint/eoa", h.HandleMintEOA)
	})
	r.Group(func(r chi.Router) {
		if h.readLimit != nil {
			r.Use(h.readLimit)
		}
		r.Get("/config", h.HandleConfig)
		r.Get("/eligibility/{address}", h.HandleEligibility)
		r.Get("/get-mint-request/{referenceId}", h.HandleGetMintRequest)
		r.Get("/get-eoa-mint-message", h.HandleGetEOAMintMessage)
	})
}

// EOAMintRequest is the body of POST /mint/eoa.
type EOAMintRequest struct {
	Signature string `json:"signature"`
}

func (r *EOAMintRequest) Normalize() {
	r.Signature = strings.TrimSpace(r.Signature)
}

func (r *EOAMintRequest) Validate() error {
	if r.Signature == "" {
		return dErrors.New(dErrors.CodeValidation, "signature is required")
	}
	return nil
}

// MintResponse is returned by both mint endpoints.
type MintResponse struct {
	TokenID           int64  `json:"tokenID"`
	CollectionAddress string `json:"collectionAddress"`
	WalletAddress     string `json:"walletAddress"`
	UUID              string `json:"uuid"`
}

// HandleMintPassport admits a mint for the wallet in the verified Passport ID token.
func (h *Handler) HandleMintPassport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	walletAddress := requestcontext.Wallet(ctx)
	if walletAddress == "" {
		h.logger.ErrorContext(ctx, "wallet missing from context despite auth middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	h.admit(w, r, walletAddress)
}

// HandleMintEOA admits a mint for the wallet that signed the configured message.
func (h *Handler) HandleMintEOA(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[EOAMintRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	walletAddress, err := h.signature.RecoverAddress(req.Signature)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to recover wallet from signature",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "failed to verify signature"))
		return
	}

	h.logger.InfoContext(ctx, "recovered wallet from signature",
		"wallet", walletAddress,
		"request_id", requestID,
	)
	r = r.WithContext(requestcontext.WithWallet(ctx, walletAddress, wallet.MethodEOA))
	h.admit(w, r, walletAddress)
}

func (h *Handler) admit(w http.ResponseWriter, r *http.Request, walletAddress string) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	admission, err := h.service.AdmitMint(ctx, walletAddress, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.IsAdmissionDenial(err) {
			h.logger.InfoContext(ctx, "mint denied",
				"wallet", walletAddress,
				"reason", string(dErrors.CodeOf(err)),
				"request_id", requestID,
			)
		} else {
			h.logger.ErrorContext(ctx, "mint failed",
				"wallet", walletAddress,
				"error", err,
				"request_id", requestID,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, MintResponse{
		TokenID:           admission.TokenID,
		CollectionAddress: admission.CollectionAddress,
		WalletAddress:     admission.WalletAddress,
		UUID:              admission.ReferenceID.String(),
	})
}

func (h *Handler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := h.service.Config(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build collection config",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cfg)
}

// HandleEligibility reports per-phase eligibility for {address}.
func (h *Handler) HandleEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	address := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "address")))
	if !common.IsHexAddress(address) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid address"))
		return
	}

	eligibility, err := h.service.Eligibility(ctx, address, requestcontext.Now(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to check eligibility",
			"address", address,
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, eligibility)
}

func (h *Handler) HandleGetMintRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	referenceID := chi.URLParam(r, "referenceId")

	status, err := h.service.MintRequest(ctx, referenceID)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to query mint request",
			"reference_id", referenceID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// EOAMintMessageResponse keeps the field name existing clients read.
type EOAMintMessageResponse struct {
	Message string `json:"serverConfig"`
}

func (h *Handler) HandleGetEOAMintMessage(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, EOAMintMessageResponse{Message: h.signature.Message()})
}
