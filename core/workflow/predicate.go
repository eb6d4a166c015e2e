package workflow

import (
	"fmt"

	"github.com/dop251/goja"
)

// evalPredicate runs a boolean JavaScript expression over a context's
// params and outputs, the mechanism Choice steps branch on. The engine
// is sandboxed per-call: no Go function bindings are exposed to the
// script, so a predicate cannot perform I/O.
func evalPredicate(expression string, wfCtx Context) (bool, error) {
	vm := goja.New()
	if err := vm.Set("params", wfCtx.Params()); err != nil {
		return false, fmt.Errorf("predicate: bind params: %w", err)
	}
	if err := vm.Set("outputs", wfCtx.Outputs()); err != nil {
		return false, fmt.Errorf("predicate: bind outputs: %w", err)
	}

	value, err := vm.RunString(expression)
	if err != nil {
		return false, fmt.Errorf("predicate evaluation failed: %w", err)
	}
	return value.ToBoolean(), nil
}
