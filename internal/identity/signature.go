package identity

import "crypto/ed25519"

// VerifyQrCodeSignatureChain implements the shared signature-validation
// rule from spec §4.6: "verify(ownerPublicKey, decode(qrCodeSetting),
// shareSignature) and verify(ownerPublicKey, decode(qrCodeSetting) ∥
// ownerConfirmByte, shareAndOwnerConfirmSignature)". Both checks must pass.
func VerifyQrCodeSignatureChain(ownerPublicKey, qrCodeSetting, shareSignature, shareAndOwnerConfirmSignature []byte, ownerConfirm bool) bool {
	if len(ownerPublicKey) != ed25519.PublicKeySize {
		return false
	}
	if !ed25519.Verify(ownerPublicKey, qrCodeSetting, shareSignature) {
		return false
	}
	confirmByte := byte(0)
	if ownerConfirm {
		confirmByte = 1
	}
	combined := append(append([]byte{}, qrCodeSetting...), confirmByte)
	return ed25519.Verify(ownerPublicKey, combined, shareAndOwnerConfirmSignature)
}

// VerifyJoinSignature checks a join-intent or invite-acceptance signature:
// the caller's own signature over the qrCodeSetting (or invite token) they
// are acting on, binding their identity to the intent.
func VerifyJoinSignature(callerPublicKey, message, signature []byte) bool {
	if len(callerPublicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(callerPublicKey, message, signature)
}
