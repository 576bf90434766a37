package mid_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ardanlabs/powledger/business/web/errs"
	"github.com/ardanlabs/powledger/business/web/mid"
	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/freshness"
	"github.com/ardanlabs/powledger/foundation/blockchain/storage"
	"github.com/ardanlabs/powledger/foundation/validate"
	"github.com/ardanlabs/powledger/foundation/web"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_Errors(t *testing.T) {
	type check struct {
		Host string `json:"host" validate:"required"`
	}

	tt := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"trusted", errs.NewTrusted(errors.New("bad topic"), http.StatusBadRequest), http.StatusBadRequest, ""},
		{"fields", validate.Check(check{}), http.StatusBadRequest, ""},
		{"notfound", fmt.Errorf("blk[9]: %w", storage.ErrNotFound), http.StatusNotFound, ""},
		{"malformed", fmt.Errorf("decode: %w", codec.ErrMalformedRecord), http.StatusBadRequest, ""},
		{"rejected", &chain.ValidationError{Kind: chain.ErrLinkageMismatch, Block: 4}, http.StatusUnprocessableEntity, chain.ErrLinkageMismatch.Error()},
		{"proof", &freshness.ProofError{Kind: freshness.ErrInclusionFailed, Block: 2}, http.StatusUnprocessableEntity, freshness.ErrInclusionFailed.Error()},
		{"panic", nil, http.StatusInternalServerError, ""},
	}

	t.Log("Given the need to respond to handler errors in a uniform way.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				app := web.NewApp(make(chan os.Signal, 1), mid.Errors(zap.NewNop().Sugar()), mid.Metrics(), mid.Panics())
				app.Handle(http.MethodGet, "", "/", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
					if tst.err == nil {
						panic("handler failure")
					}
					return tst.err
				})

				w := httptest.NewRecorder()
				app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

				if w.Code != tst.status {
					t.Fatalf("\t%s\tTest %d:\tShould respond with status %d: got %d", failed, testID, tst.status, w.Code)
				}
				t.Logf("\t%s\tTest %d:\tShould respond with status %d.", success, testID, tst.status)

				var resp errs.Response
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp.Error == "" {
					t.Fatalf("\t%s\tTest %d:\tShould respond with an error document: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould respond with an error document.", success, testID)

				if resp.Kind != tst.kind || (tst.kind != "" && resp.Block == nil) {
					t.Fatalf("\t%s\tTest %d:\tShould name the failed check: kind[%s]", failed, testID, resp.Kind)
				}
				t.Logf("\t%s\tTest %d:\tShould name the failed check.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Cors(t *testing.T) {
	ok := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	tt := []struct {
		name    string
		origins []string
		origin  string
		allowed string
	}{
		{"any", []string{"*"}, "http://viewer.local", "*"},
		{"listed", []string{"http://viewer.local"}, "http://viewer.local", "http://viewer.local"},
		{"unlisted", []string{"http://viewer.local"}, "http://other.local", ""},
	}

	t.Log("Given the need to answer cross origin requests.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				app := web.NewApp(make(chan os.Signal, 1), mid.Cors(tst.origins...))
				app.Handle(http.MethodDelete, "", "/peers", ok)

				r := httptest.NewRequest(http.MethodDelete, "/peers", nil)
				r.Header.Set("Origin", tst.origin)
				w := httptest.NewRecorder()
				app.ServeHTTP(w, r)

				if got := w.Header().Get("Access-Control-Allow-Origin"); got != tst.allowed {
					t.Fatalf("\t%s\tTest %d:\tShould allow origin %q: got %q", failed, testID, tst.allowed, got)
				}
				t.Logf("\t%s\tTest %d:\tShould allow origin %q.", success, testID, tst.allowed)
			}

			t.Run(tst.name, f)
		}
	}
}
