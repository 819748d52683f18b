package testutil

import (
	"net/http"

	"mintgate/pkg/requestcontext"
)

// WithWallet marks the request as authenticated for wallet, the way the
// passport middleware or EOA recovery would.
func WithWallet(req *http.Request, wallet, method string) *http.Request {
	return req.WithContext(requestcontext.WithWallet(req.Context(), wallet, method))
}

// WithClientIP sets the caller address that the ClientIP middleware would resolve.
func WithClientIP(req *http.Request, ip string) *http.Request {
	return req.WithContext(requestcontext.WithClientIP(req.Context(), ip))
}
