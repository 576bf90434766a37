package validate_test

import (
	"testing"

	"github.com/ardanlabs/powledger/foundation/validate"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

type model struct {
	Author  string `json:"author" validate:"required,address"`
	Limit   string `json:"limit" validate:"required,hexbig"`
	Workers int    `json:"workers" validate:"gte=1"`
}

func Test_Check(t *testing.T) {
	t.Log("Given the need to validate models.")
	{
		good := model{Author: "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4", Limit: "0xff", Workers: 2}
		if err := validate.Check(good); err != nil {
			t.Fatalf("\t%s\tShould accept a valid model: %s", failed, err)
		}
		t.Logf("\t%s\tShould accept a valid model.", success)

		bad := model{Author: "bill", Limit: "ten", Workers: 0}
		err := validate.Check(bad)
		if !validate.IsFieldErrors(err) {
			t.Fatalf("\t%s\tShould report field errors: %v", failed, err)
		}
		t.Logf("\t%s\tShould report field errors.", success)

		fields := validate.GetFieldErrors(err).Fields()
		for _, name := range []string{"author", "limit", "workers"} {
			if _, exists := fields[name]; !exists {
				t.Fatalf("\t%s\tShould name the %s field by its json tag: %v", failed, name, fields)
			}
		}
		t.Logf("\t%s\tShould name the fields by their json tags.", success)

		if fields["author"] != "author must be a hex encoded address" {
			t.Fatalf("\t%s\tShould translate the custom message: %q", failed, fields["author"])
		}
		t.Logf("\t%s\tShould translate the custom message.", success)
	}
}
