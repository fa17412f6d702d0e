// Package tools defines the spreadsheet command model.
//
// A Command is what the extraction pipeline produces from free-form AI output: a type tag
// plus loosely typed parameters. The validator checks it against the schema of its kind
// and turns it into an Op, the closed set of operations the dispatcher knows how to run.
//
// Architecture:
//
//	plan text → Extractor → Command → Validate() → Op → Dispatcher
package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind names a recognized command kind.
type Kind string

const (
	KindInsertFormula Kind = "insert_formula"
	KindFormatRange   Kind = "format_range"
	KindCreateChart   Kind = "create_chart"
	KindGetData       Kind = "get_data"
	KindInsertData    Kind = "insert_data"
	KindSortData      Kind = "sort_data"
	KindFilterData    Kind = "filter_data"
)

// Command is a single extracted spreadsheet action.
// Type is never empty for commands produced by extraction.
type Command struct {
	// Type is the command kind as written by the AI service. It may be a kind the
	// dispatcher does not recognize.
	Type string

	// Params holds named parameters such as "cell" or "range".
	Params map[string]any

	// Positional holds unnamed captures from pattern matching, in capture order.
	Positional []string
}

// NewCommand builds a command with named parameters.
func NewCommand(kind Kind, params map[string]any) Command {
	if params == nil {
		params = map[string]any{}
	}
	return Command{Type: string(kind), Params: params}
}

// Kind returns the command type as a Kind.
func (c Command) Kind() Kind { return Kind(c.Type) }

// Param returns a named parameter.
func (c Command) Param(key string) (any, bool) {
	if c.Params == nil {
		return nil, false
	}
	v, ok := c.Params[key]
	return v, ok
}

// Text returns a named scalar parameter as text, or "" if absent.
func (c Command) Text(key string) string {
	v, ok := c.Param(key)
	if !ok {
		return ""
	}
	s, _ := scalarString(v)
	return s
}

// FromValue converts a decoded JSON or YAML value into a Command.
// It reports false when v is not an object with a non-empty string "type".
func FromValue(v any) (Command, bool) {
	m, ok := asStringMap(v)
	if !ok {
		return Command{}, false
	}
	typ, ok := m["type"].(string)
	if !ok || strings.TrimSpace(typ) == "" {
		return Command{}, false
	}

	cmd := Command{Type: strings.TrimSpace(typ), Params: make(map[string]any, len(m))}
	for k, val := range m {
		if k == "type" || k == "parameters" {
			continue
		}
		cmd.Params[k] = val
	}

	switch p := m["parameters"].(type) {
	case []any:
		for _, item := range p {
			if s, ok := scalarString(item); ok {
				cmd.Positional = append(cmd.Positional, s)
			}
		}
	case nil:
	default:
		if nested, ok := asStringMap(p); ok {
			for k, val := range nested {
				if _, exists := cmd.Params[k]; !exists {
					cmd.Params[k] = val
				}
			}
		}
	}
	return cmd, true
}

// MarshalJSON renders the flat wire form: {"type": ..., <params>..., "parameters": [...]}.
func (c Command) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Params)+2)
	for k, v := range c.Params {
		out[k] = v
	}
	out["type"] = c.Type
	if len(c.Positional) > 0 {
		out["parameters"] = c.Positional
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the flat wire form. A missing type is not a decode error;
// the validator reports it.
func (c *Command) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if _, ok := raw.(map[string]any); !ok {
		return fmt.Errorf("command must be a JSON object")
	}
	if cmd, ok := FromValue(raw); ok {
		*c = cmd
		return nil
	}
	// Keep parameters so the validator can name the missing type.
	m := raw.(map[string]any)
	delete(m, "type")
	*c = Command{Params: m}
	return nil
}

// Describe renders the command for logs: type followed by sorted params.
func (c Command) Describe() string {
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(c.Type)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, c.Params[k])
	}
	if len(c.Positional) > 0 {
		fmt.Fprintf(&sb, " parameters=%q", c.Positional)
	}
	return sb.String()
}

// asStringMap normalizes the map shapes produced by encoding/json and yaml.v3.
func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// scalarString formats strings, numbers and booleans. Integral floats print without
// a fraction so that a JSON 2 reads as "2".
func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10), true
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return scalarString(float64(x))
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}
