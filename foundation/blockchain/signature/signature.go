// Package signature provides helper functions for signing the payloads nodes
// exchange and recovering the address of the node that signed them.
package signature

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSignature is returned when a sealed payload does not carry a
// valid signature.
var ErrInvalidSignature = errors.New("invalid signature")

// ledgerID is an arbitrary number added to the recovery id of every
// signature. Ethereum and Bitcoin do this as well, but they use the value of 27.
const ledgerID = 29

// =============================================================================

// Sign uses the specified private key to sign the payload.
func Sign(payload []byte, privateKey *ecdsa.PrivateKey) (v, r, s *big.Int, err error) {
	data := stamp(payload)

	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return nil, nil, nil, err
	}

	// Check the public key extracted from the data and signature.
	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return nil, nil, nil, err
	}

	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), data, rs) {
		return nil, nil, nil, ErrInvalidSignature
	}

	v, r, s = toSignatureValues(sig)

	return v, r, s, nil
}

// VerifySignature verifies the signature values conform to our standards.
func VerifySignature(v, r, s *big.Int) error {
	uintV := v.Uint64() - ledgerID
	if uintV != 0 && uintV != 1 {
		return fmt.Errorf("%w: recovery id", ErrInvalidSignature)
	}

	if !crypto.ValidateSignatureValues(byte(uintV), r, s, false) {
		return fmt.Errorf("%w: signature values", ErrInvalidSignature)
	}

	return nil
}

// FromAddress extracts the address of the account that signed the payload.
func FromAddress(payload []byte, v, r, s *big.Int) (common.Address, error) {
	publicKey, err := crypto.SigToPub(stamp(payload), ToSignatureBytes(v, r, s))
	if err != nil {
		return common.Address{}, err
	}

	return crypto.PubkeyToAddress(*publicKey), nil
}

// SignatureString returns the signature as a string.
func SignatureString(v, r, s *big.Int) string {
	return hexutil.Encode(ToSignatureBytesWithLedgerID(v, r, s))
}

// =============================================================================

// Seal signs the payload and returns the signature with the ledger id
// followed by the payload.
func Seal(payload []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	v, r, s, err := Sign(payload, privateKey)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, crypto.SignatureLength+len(payload))
	sealed = append(sealed, ToSignatureBytesWithLedgerID(v, r, s)...)
	sealed = append(sealed, payload...)

	return sealed, nil
}

// Open checks the signature of a sealed payload and returns the address of
// the signer and the payload.
func Open(sealed []byte) (common.Address, []byte, error) {
	if len(sealed) < crypto.SignatureLength {
		return common.Address{}, nil, fmt.Errorf("%w: sealed payload too short", ErrInvalidSignature)
	}

	sig := sealed[:crypto.SignatureLength]
	payload := sealed[crypto.SignatureLength:]

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	v := new(big.Int).SetBytes([]byte{sig[64]})

	if err := VerifySignature(v, r, s); err != nil {
		return common.Address{}, nil, err
	}

	from, err := FromAddress(payload, v, r, s)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	return from, payload, nil
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents the payload with the
// ledger stamp embedded into the final hash.
func stamp(payload []byte) []byte {
	hash := crypto.Keccak256(payload)

	// This stamp is used so signatures we produce when signing data are
	// always unique to this ledger.
	stamp := []byte("\x19Powledger Signed Message:\n32")

	return crypto.Keccak256(stamp, hash)
}

// toSignatureValues converts the signature into the r, s, v values.
func toSignatureValues(sig []byte) (v, r, s *big.Int) {
	r = new(big.Int).SetBytes(sig[:32])
	s = new(big.Int).SetBytes(sig[32:64])
	v = new(big.Int).SetBytes([]byte{sig[64] + ledgerID})

	return v, r, s
}

// ToSignatureBytes converts the r, s, v values into a slice of bytes
// with the removal of the ledger id.
func ToSignatureBytes(v, r, s *big.Int) []byte {
	sig := make([]byte, crypto.SignatureLength)

	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:64])
	sig[64] = byte(v.Uint64() - ledgerID)

	return sig
}

// ToSignatureBytesWithLedgerID converts the r, s, v values into a slice of
// bytes keeping the ledger id.
func ToSignatureBytesWithLedgerID(v, r, s *big.Int) []byte {
	sig := ToSignatureBytes(v, r, s)
	sig[64] = byte(v.Uint64())

	return sig
}
