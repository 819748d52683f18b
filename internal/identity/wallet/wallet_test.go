package wallet

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "mintgate/pkg/domain-errors"
)

func sign(t *testing.T, message string) (address, signature string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[64] += 27
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), hexutil.Encode(sig)
}

func TestPersonalHashMatchesGoEthereum(t *testing.T) {
	assert.Equal(t, accounts.TextHash([]byte(DefaultMessage)), personalHash(DefaultMessage))
}

func TestRecoverAddress(t *testing.T) {
	v := NewVerifier("")
	address, signature := sign(t, DefaultMessage)

	recovered, err := v.RecoverAddress(signature)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(address), recovered)

	ok, err := v.Verify(address, signature)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignatureOverOtherMessage(t *testing.T) {
	v := NewVerifier("mint with me")
	address, signature := sign(t, "something else")

	ok, err := v.Verify(address, signature)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMalformedSignatures(t *testing.T) {
	v := NewVerifier("")
	_, valid := sign(t, DefaultMessage)
	badV := valid[:len(valid)-2] + "05"

	for name, sig := range map[string]string{
		"not hex":      "zzzz",
		"too short":    "0x1234",
		"bad recovery": badV,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.RecoverAddress(sig)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		})
	}

	_, err := v.Verify("not-an-address", valid)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
