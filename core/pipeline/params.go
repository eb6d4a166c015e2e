package pipeline

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/ryansmccoy/spine-core/infrastructure/errors"
)

var (
	validatorOnce sync.Once
	validatorInst *validator.Validate
)

func sharedValidator() *validator.Validate {
	validatorOnce.Do(func() {
		validatorInst = validator.New()
	})
	return validatorInst
}

// aliasTable maps deprecated/alternate param tier names to their current
// name; the Resolver folds aliases before validation runs.
var aliasTable = map[string]string{
	"partition": "partition_key",
	"tier":      "calc_version",
}

// Resolve normalizes raw params: it folds known aliases, trims string
// values, fills declared defaults, and validates the result against
// spec. It never mutates raw.
func Resolve(spec Spec, raw map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(raw))
	for k, v := range raw {
		key := k
		if canonical, ok := aliasTable[k]; ok {
			key = canonical
		}
		if s, ok := v.(string); ok {
			v = strings.TrimSpace(s)
		}
		resolved[key] = v
	}

	for _, p := range spec.Params {
		if _, present := resolved[p.Name]; !present {
			if p.Required {
				return nil, errors.BadParams(fmt.Sprintf("missing required parameter %q", p.Name)).
					WithContext("param", p.Name)
			}
			if p.Default != nil {
				resolved[p.Name] = p.Default
			}
		}
	}

	if err := validate(spec, resolved); err != nil {
		return nil, err
	}
	return resolved, nil
}

func validate(spec Spec, params map[string]any) error {
	v := sharedValidator()
	for _, p := range spec.Params {
		if p.Tag == "" {
			continue
		}
		value, present := params[p.Name]
		if !present {
			continue
		}
		if err := v.Var(value, p.Tag); err != nil {
			return errors.BadParams(fmt.Sprintf("parameter %q failed validation: %s", p.Name, p.Tag)).
				WithContext("param", p.Name).WithContext("value", value)
		}
	}
	return nil
}
