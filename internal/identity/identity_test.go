package identity

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildUIDRoundTrip(t *testing.T) {
	keys, err := DeriveKeys([]byte("test-seed-material-0001"))
	require.NoError(t, err)

	uid, err := BuildUID(keys.SigningPublicKey)
	require.NoError(t, err)
	require.NotEmpty(t, uid)

	ok, err := VerifyUID(uid, keys.SigningPublicKey)
	require.NoError(t, err)
	require.True(t, ok)

	hash, err := DecodeUID(uid)
	require.NoError(t, err)
	require.Len(t, hash, 20)
}

func TestVerifyUIDRejectsWrongKey(t *testing.T) {
	k1, err := DeriveKeys([]byte("seed-a"))
	require.NoError(t, err)
	k2, err := DeriveKeys([]byte("seed-b"))
	require.NoError(t, err)

	uid, err := BuildUID(k1.SigningPublicKey)
	require.NoError(t, err)

	ok, err := VerifyUID(uid, k2.SigningPublicKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestQrCodeSignatureChain(t *testing.T) {
	owner, err := DeriveKeys([]byte("owner-seed"))
	require.NoError(t, err)

	qrSetting := []byte("qr-code-setting-payload")
	shareSig := ed25519.Sign(owner.SigningPrivateKey, qrSetting)
	combined := append(append([]byte{}, qrSetting...), byte(1))
	shareAndConfirmSig := ed25519.Sign(owner.SigningPrivateKey, combined)

	ok := VerifyQrCodeSignatureChain(owner.SigningPublicKey, qrSetting, shareSig, shareAndConfirmSig, true)
	require.True(t, ok)

	// A tampered ownerConfirm flag must fail the second half of the chain.
	ok = VerifyQrCodeSignatureChain(owner.SigningPublicKey, qrSetting, shareSig, shareAndConfirmSig, false)
	require.False(t, ok)
}
