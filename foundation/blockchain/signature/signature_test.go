package signature_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/powledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const (
	pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	from     = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
)

// =============================================================================

func Test_Signing(t *testing.T) {
	payload := []byte("UPDATE_MAIN block payload")

	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	t.Log("Given the need to sign a payload.")
	{
		v, r, s, err := signature.Sign(payload, pk)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign data: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to sign data.", success)

		if err := signature.VerifySignature(v, r, s); err != nil {
			t.Fatalf("\t%s\tShould be able to verify the signature: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to verify the signature.", success)

		addr, err := signature.FromAddress(payload, v, r, s)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate from address: %s", failed, err)
		}

		if addr != common.HexToAddress(from) {
			t.Logf("\t\tgot: %s", addr)
			t.Logf("\t\texp: %s", from)
			t.Fatalf("\t%s\tShould get back the right address.", failed)
		}
		t.Logf("\t%s\tShould get back the right address.", success)

		if str := signature.SignatureString(v, r, s); len(str) != 2+2*crypto.SignatureLength {
			t.Fatalf("\t%s\tShould encode the signature as hex: %s", failed, str)
		}
		t.Logf("\t%s\tShould encode the signature as hex.", success)
	}
}

func Test_Seal(t *testing.T) {
	payload := []byte("QUERIES_TRANSACTION payload")

	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	t.Log("Given the need to seal payloads for peers.")
	{
		sealed, err := signature.Seal(payload, pk)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to seal the payload: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to seal the payload.", success)

		addr, got, err := signature.Open(sealed)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open the payload: %s", failed, err)
		}
		if addr != common.HexToAddress(from) || string(got) != string(payload) {
			t.Fatalf("\t%s\tShould recover the signer and the payload: %s", failed, addr)
		}
		t.Logf("\t%s\tShould recover the signer and the payload.", success)

		tampered := append([]byte{}, sealed...)
		tampered[len(tampered)-1] ^= 0xff
		if addr, _, err := signature.Open(tampered); err == nil && addr == common.HexToAddress(from) {
			t.Fatalf("\t%s\tShould not attribute a tampered payload to the signer.", failed)
		}
		t.Logf("\t%s\tShould not attribute a tampered payload to the signer.", success)

		if _, _, err := signature.Open(sealed[:10]); !errors.Is(err, signature.ErrInvalidSignature) {
			t.Fatalf("\t%s\tShould reject a short payload: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a short payload.", success)

		bad := append([]byte{}, sealed...)
		bad[64] = 5
		if _, _, err := signature.Open(bad); !errors.Is(err, signature.ErrInvalidSignature) {
			t.Fatalf("\t%s\tShould reject a bad recovery id: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a bad recovery id.", success)
	}
}
