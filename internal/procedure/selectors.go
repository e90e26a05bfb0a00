package procedure

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"knowshowgo/internal/logging"
	"knowshowgo/internal/types"
)

// fallbackSelectors maps well-known form field names to secondary selectors
// tried when the stored selector fails. Order matters.
var fallbackSelectors = map[string][]string{
	"email": {
		"input[type='email']",
		"#email",
		"input[name='email']",
	},
	"username": {
		"input[name='username']",
		"#username",
		"input[autocomplete='username']",
	},
	"password": {
		"input[type='password']",
		"#password",
		"input[name='password']",
	},
	"name": {
		"input[name='name']",
		"#name",
		"input[autocomplete='name']",
	},
	"phone": {
		"input[type='tel']",
		"#phone",
		"input[name='phone']",
	},
	"search": {
		"input[type='search']",
		"#search",
		"input[name='q']",
	},
}

// genericFallbacks are tried for fields with no dedicated entry.
var genericFallbacks = []string{
	"input[type='text']",
}

// FallbacksFor returns the fallback selector list for a field name.
func FallbacksFor(field string) []string {
	if list, ok := fallbackSelectors[strings.ToLower(field)]; ok {
		return list
	}
	return genericFallbacks
}

// hasSelectorMap reports whether a web.fill payload carries a per-field
// selectors map, which opts it into the fallback path.
func hasSelectorMap(payload types.Props) bool {
	m, ok := payload["selectors"].(map[string]interface{})
	return ok && len(m) > 0
}

// fillWithFallback fills each field, retrying with fallback selectors when
// the stored one fails. The output records every selector tried and, per
// field, the winning fallback when the primary did not work. The agent's
// self-healing pass writes winners back into the stored procedure.
func (e *Executor) fillWithFallback(ctx context.Context, payload types.Props) (types.Props, error) {
	selectors := payload["selectors"].(map[string]interface{})
	values, _ := payload["values"].(map[string]interface{})

	fields := make([]string, 0, len(selectors))
	for field := range selectors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	attempted := []interface{}{}
	winners := map[string]interface{}{}

	for _, field := range fields {
		primary, _ := selectors[field].(string)
		candidates := []string{}
		if primary != "" {
			candidates = append(candidates, primary)
		}
		candidates = append(candidates, FallbacksFor(field)...)

		var lastErr error
		filled := false
		for _, sel := range candidates {
			attempted = append(attempted, sel)
			params := types.Props{"selector": sel}
			if values != nil {
				if v, ok := values[field]; ok {
					params["value"] = v
				}
			}
			for k, v := range payload {
				if k != "selectors" && k != "values" {
					params[k] = v
				}
			}

			if _, err := e.runner.Run(ctx, "web.fill", params); err != nil {
				lastErr = err
				continue
			}
			if sel != primary {
				winners[field] = sel
				logging.ProcedureDebug("field %s healed: %s -> %s", field, primary, sel)
			}
			filled = true
			break
		}
		if !filled {
			return nil, fmt.Errorf("no selector worked for field %s: %w", field, lastErr)
		}
	}

	output := types.Props{
		"status":              types.StatusCompleted,
		"attempted_selectors": attempted,
	}
	if len(winners) > 0 {
		output["fallback_selectors"] = winners
		if len(winners) == 1 {
			// The common single-field case also surfaces the winner as a
			// plain string, the shape guards are written against.
			for _, sel := range winners {
				output["fallback_selector"] = sel
			}
		}
	}
	return output, nil
}
