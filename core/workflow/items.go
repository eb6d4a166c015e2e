package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tidwall/gjson"

	"github.com/ryansmccoy/spine-core/infrastructure/errors"
)

// resolveItems evaluates a Map step's items_path against the context's
// combined params/outputs view and returns the resolved list. A path
// starting with "$" is a full JSONPath expression (e.g.
// "$.outputs.fetch_venues.result[?(@.active)]"); anything else is a
// gjson dotted path (e.g. "outputs.fetch_venues.result"), the common
// case that doesn't need filter/wildcard syntax.
func resolveItems(itemsPath string, wfCtx Context) ([]any, error) {
	view := map[string]any{
		"params":  wfCtx.Params(),
		"outputs": wfCtx.Outputs(),
	}

	if strings.HasPrefix(itemsPath, "$") {
		return resolveItemsJSONPath(itemsPath, view)
	}
	return resolveItemsGJSON(itemsPath, view)
}

func resolveItemsJSONPath(itemsPath string, view map[string]any) ([]any, error) {
	resolved, err := jsonpath.Get(itemsPath, view)
	if err != nil {
		return nil, errors.BadParams(fmt.Sprintf("items_path %q failed: %v", itemsPath, err))
	}
	items, ok := resolved.([]any)
	if !ok {
		return nil, errors.BadParams(fmt.Sprintf("items_path %q did not resolve to a list", itemsPath))
	}
	return items, nil
}

func resolveItemsGJSON(itemsPath string, view map[string]any) ([]any, error) {
	raw, err := json.Marshal(view)
	if err != nil {
		return nil, errors.WorkflowError("map.items_path", err)
	}

	result := gjson.GetBytes(raw, itemsPath)
	if !result.Exists() {
		return nil, errors.BadParams(fmt.Sprintf("items_path %q resolved to nothing", itemsPath))
	}
	if !result.IsArray() {
		return nil, errors.BadParams(fmt.Sprintf("items_path %q did not resolve to a list", itemsPath))
	}

	items := make([]any, 0)
	result.ForEach(func(_, value gjson.Result) bool {
		items = append(items, value.Value())
		return true
	})
	return items, nil
}
