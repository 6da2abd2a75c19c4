package identity

import "crypto/ed25519"

// DerivedKeys is the output of DeriveKeys: a signing keypair plus a raw
// seed for whatever symmetric encryption scheme the client layer uses.
// GLKDC itself never derives or holds private keys — it only verifies
// signatures against uploaded public keys — but DeriveKeys is kept and
// exercised by tests that need to simulate a client's signing identity to
// produce realistic qrCodeSetting/shareSignature fixtures.
type DerivedKeys struct {
	SigningPrivateKey ed25519.PrivateKey
	SigningPublicKey  ed25519.PublicKey
	EncryptionSeed    []byte
}
