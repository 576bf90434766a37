package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Expressions evaluates rules written in the expr language against an
// item's fields. A rule must produce a boolean, for example
// `amount >= 0 && to != from`.
type Expressions struct{}

// programs caches compiled rules by rule text and field signature.
var programs sync.Map

// Evaluate implements the Evaluator interface.
func (Expressions) Evaluate(expression string, fields map[string]any) (bool, error) {
	program, err := compile(expression, fields)
	if err != nil {
		return false, err
	}

	out, err := expr.Run(program, fields)
	if err != nil {
		return false, fmt.Errorf("run %q: %w", expression, err)
	}

	ok, is := out.(bool)
	if !is {
		return false, fmt.Errorf("rule %q returned %T", expression, out)
	}

	return ok, nil
}

func compile(expression string, fields map[string]any) (*vm.Program, error) {
	key := expression + "\x00" + signature(fields)
	if p, exists := programs.Load(key); exists {
		return p.(*vm.Program), nil
	}

	program, err := expr.Compile(expression, expr.Env(fields), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expression, err)
	}

	programs.Store(key, program)
	return program, nil
}

// signature names every field with its type so a rule compiled for one
// shape of fields is never run against another.
func signature(fields map[string]any) string {
	names := make([]string, 0, len(fields))
	for name, value := range fields {
		names = append(names, fmt.Sprintf("%s:%T", name, value))
	}
	sort.Strings(names)

	return strings.Join(names, ",")
}
