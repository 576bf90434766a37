// Package errs provides the error documents the node API responds with and
// the mapping of ledger errors onto them.
package errs

import (
	"errors"
	"net/http"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/freshness"
	"github.com/ardanlabs/powledger/foundation/blockchain/storage"
)

// Response is the form used for API responses from failures in the API.
// Kind and Block are set when a record failed a consensus check.
type Response struct {
	Error  string            `json:"error"`
	Kind   string            `json:"kind,omitempty"`
	Block  *int64            `json:"block,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted is an error a handler raised on purpose, with the status the
// client should see.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted wraps a provided error with an HTTP status code.
func NewTrusted(err error, status int) error {
	return &Trusted{err, status}
}

func (re *Trusted) Error() string {
	return re.Err.Error()
}

// Unwrap returns the wrapped error so ledger kinds stay visible to
// errors.Is.
func (re *Trusted) Unwrap() error {
	return re.Err
}

// IsTrusted checks if an error of type Trusted exists.
func IsTrusted(err error) bool {
	var re *Trusted
	return errors.As(err, &re)
}

// GetTrusted returns a copy of the Trusted pointer.
func GetTrusted(err error) *Trusted {
	var re *Trusted
	if !errors.As(err, &re) {
		return nil
	}
	return re
}

// =============================================================================

// Ledger maps an error raised by the ledger packages onto a response. It
// reports false for errors the ledger does not define.
//
//	record not in the store        404
//	malformed record               400
//	block or proof check failure   422, with kind and block
func Ledger(err error) (Response, int, bool) {
	var ve *chain.ValidationError
	if errors.As(err, &ve) {
		return rejected(err, ve.Kind, ve.Block), http.StatusUnprocessableEntity, true
	}

	var pe *freshness.ProofError
	if errors.As(err, &pe) {
		return rejected(err, pe.Kind, pe.Block), http.StatusUnprocessableEntity, true
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return Response{Error: err.Error()}, http.StatusNotFound, true

	case errors.Is(err, codec.ErrMalformedRecord):
		return Response{Error: err.Error()}, http.StatusBadRequest, true
	}

	return Response{}, 0, false
}

func rejected(err error, kind error, block int64) Response {
	return Response{
		Error: err.Error(),
		Kind:  kind.Error(),
		Block: &block,
	}
}
