// Package wallet proves control of an externally owned account through an
// EIP-191 personal_sign signature over a fixed message.
package wallet

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"

	dErrors "mintgate/pkg/domain-errors"
)

// MethodEOA marks wallets proven by a signature.
const MethodEOA = "eoa"

// DefaultMessage is what wallets sign unless configured otherwise.
const DefaultMessage = "Sign this message to verify your wallet address"

const signatureLength = 65

// Verifier recovers signer addresses for one configured message.
type Verifier struct {
	message string
}

func NewVerifier(message string) *Verifier {
	if message == "" {
		message = DefaultMessage
	}
	return &Verifier{message: message}
}

// Message is the text clients must sign.
func (v *Verifier) Message() string {
	return v.message
}

// RecoverAddress returns the lower-cased address that produced signature
// over the configured message.
func (v *Verifier) RecoverAddress(signature string) (string, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "signature is not valid hex")
	}
	if len(sig) != signatureLength {
		return "", dErrors.New(dErrors.CodeUnauthorized, fmt.Sprintf("signature must be %d bytes", signatureLength))
	}
	// Wallets emit v as 27/28; recovery wants 0/1.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return "", dErrors.New(dErrors.CodeUnauthorized, "signature has an invalid recovery id")
	}

	pub, err := crypto.SigToPub(personalHash(v.message), sig)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "signature recovery failed")
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// Verify reports whether signature was produced by address.
func (v *Verifier) Verify(address, signature string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, dErrors.New(dErrors.CodeInvalidInput, "malformed wallet address")
	}
	recovered, err := v.RecoverAddress(signature)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(recovered, address), nil
}

// personalHash is keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
func personalHash(message string) []byte {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return h.Sum(nil)
}
