package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// bag is the uniform parameter bag: query-string values for query
// operations, a flat JSON object for insert operations. JSON values win
// over query values of the same name.
type bag map[string]any

func readBag(r *http.Request) bag {
	b := bag{}
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			b[name] = values[0]
		}
	}
	if r.Body != nil && r.Method == http.MethodPost {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			for name, v := range body {
				b[name] = v
			}
		}
	}
	return b
}

func (b bag) stringParam(name string) (string, bool) {
	v, ok := b[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (b bag) boolParam(name string, def bool) bool {
	v, ok := b[name]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		parsed, err := strconv.ParseBool(t)
		if err != nil {
			return def
		}
		return parsed
	default:
		return def
	}
}

func (b bag) intParam(name string) (int, error) {
	v, ok := b[name]
	if !ok {
		return 0, fmt.Errorf("missing parameter %q", name)
	}
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case string:
		return strconv.Atoi(t)
	default:
		return 0, fmt.Errorf("parameter %q has unsupported type %T", name, v)
	}
}
