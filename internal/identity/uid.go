package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required for the hash160 UID scheme
)

// uidVersionByte is spec §6's "version byte 0" for the base58check UID.
const uidVersionByte byte = 0x00

// BuildUID implements spec §6: "UID format is base58check with version
// byte 0 and is derivable from the account public key (hash160 over the
// key, minus the DJB type prefix)". The DJB (Curve25519) identity-key
// convention some messaging protocols use prepends a one-byte type tag
// (0x05) before hashing; GLKDC stores raw 32-byte Ed25519 public keys with
// no such tag, so hash160 runs directly over the key bytes.
//
// This replaces the teacher's BuildIdentityID scheme ("aim1" + base58 of a
// blake2b-256 digest) with the spec's hash160 + base58check format.
func BuildUID(signingPublicKey []byte) (string, error) {
	if len(signingPublicKey) != ed25519.PublicKeySize {
		return "", fmt.Errorf("identity: invalid signing public key size: %d", len(signingPublicKey))
	}
	payload := append([]byte{uidVersionByte}, hash160(signingPublicKey)...)
	checksum := doubleSHA256(payload)[:4]
	return base58.Encode(append(payload, checksum...)), nil
}

// VerifyUID reports whether uid was derived from signingPublicKey via
// BuildUID.
func VerifyUID(uid string, signingPublicKey []byte) (bool, error) {
	expected, err := BuildUID(signingPublicKey)
	if err != nil {
		return false, err
	}
	return uid == expected, nil
}

// DecodeUID recovers the hash160 payload from a base58check UID, verifying
// its checksum and version byte. Used when the server needs to confirm a
// UID is well-formed without having the claimed public key on hand yet.
func DecodeUID(uid string) (hash160 []byte, err error) {
	raw, err := base58.Decode(uid)
	if err != nil {
		return nil, fmt.Errorf("identity: malformed uid: %w", err)
	}
	if len(raw) != 1+20+4 {
		return nil, fmt.Errorf("identity: unexpected uid payload length %d", len(raw))
	}
	version, body, checksum := raw[0], raw[1:21], raw[21:25]
	if version != uidVersionByte {
		return nil, fmt.Errorf("identity: unsupported uid version byte %d", version)
	}
	want := doubleSHA256(raw[:21])[:4]
	for i := range checksum {
		if checksum[i] != want[i] {
			return nil, fmt.Errorf("identity: uid checksum mismatch")
		}
	}
	return body, nil
}

func hash160(data []byte) []byte {
	sha := sha256.Sum256(data)
	r := ripemd160.New()
	r.Write(sha[:])
	return r.Sum(nil)
}

func doubleSHA256(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:]
}
