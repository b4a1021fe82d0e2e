// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package llm

import (
	"encoding/json"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// Target describes the shape a model response must parse into. The set of
// kinds is closed; use one of the Target* constructors. TargetFunc admits a
// caller-supplied validator for anything beyond the built-in kinds.
type Target struct {
	kind     string
	validate func(raw string) (any, error)
}

// Kind returns the target's tag, e.g. "json" or "bool".
func (t Target) Kind() string { return t.kind }

// Parse validates a raw model response against the target.
//
// A response of "none" (any case, optionally punctuated) short-circuits to a
// nil value with no error: it is the model's way of saying the question does
// not apply.
func (t Target) Parse(raw string) (any, error) {
	if isNone(raw) {
		return nil, nil
	}
	if t.validate == nil {
		return strings.TrimSpace(raw), nil
	}
	return t.validate(raw)
}

func isNone(raw string) bool {
	return strings.EqualFold(strings.Trim(strings.TrimSpace(raw), ".!"), "none")
}

func invalid(reason string) error {
	return mnemoerr.New(mnemoerr.CodeLLMResponseInvalid, reason)
}

// TargetText accepts any response verbatim, trimmed.
func TargetText() Target {
	return Target{kind: "text"}
}

// TargetJSON requires a response that parses as JSON, with or without a
// ```json code fence.
func TargetJSON() Target {
	return Target{kind: "json", validate: func(raw string) (any, error) {
		var value any
		if err := json.Unmarshal([]byte(stripFence(raw)), &value); err != nil {
			return nil, invalid("the response is not valid JSON: " + err.Error())
		}
		return value, nil
	}}
}

// TargetYAML requires a response that parses as YAML, with or without a
// ```yaml code fence.
func TargetYAML() Target {
	return Target{kind: "yaml", validate: func(raw string) (any, error) {
		var value any
		if err := yaml.Unmarshal([]byte(stripFence(raw)), &value); err != nil {
			return nil, invalid("the response is not valid YAML: " + err.Error())
		}
		return value, nil
	}}
}

// TargetInt requires a bare integer.
func TargetInt() Target {
	return Target{kind: "int", validate: func(raw string) (any, error) {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, invalid("the response must be a single integer with no other text")
		}
		return n, nil
	}}
}

// TargetFloat requires a bare number.
func TargetFloat() Target {
	return Target{kind: "float", validate: func(raw string) (any, error) {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, invalid("the response must be a single number with no other text")
		}
		return f, nil
	}}
}

// TargetBool requires a yes/no style answer.
func TargetBool() Target {
	return Target{kind: "bool", validate: func(raw string) (any, error) {
		answer := strings.ToLower(strings.Trim(strings.TrimSpace(raw), ".,!? "))
		switch answer {
		case "yes", "true", "y", "1":
			return true, nil
		case "no", "false", "n", "0":
			return false, nil
		default:
			return nil, invalid("the response must be exactly yes or no")
		}
	}}
}

// TargetList requires a newline-separated list; bullet markers and numbering
// dots are tolerated. The parsed value is a []string of the non-empty items.
func TargetList() Target {
	return Target{kind: "list", validate: func(raw string) (any, error) {
		var items []string
		for _, line := range strings.Split(raw, "\n") {
			item := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*+ \t"))
			if item != "" {
				items = append(items, item)
			}
		}
		if len(items) == 0 {
			return nil, invalid("the response must contain at least one list item, one per line")
		}
		return items, nil
	}}
}

// TargetFunc wraps a caller-supplied validator. The validator returns the
// typed value, or an error whose message is fed back to the model as the
// reason the response was rejected.
func TargetFunc(kind string, fn func(raw string) (any, error)) Target {
	return Target{kind: kind, validate: func(raw string) (any, error) {
		value, err := fn(raw)
		if err != nil {
			if mnemoerr.HasCode(err, mnemoerr.CodeLLMResponseInvalid) {
				return nil, err
			}
			return nil, invalid(err.Error())
		}
		return value, nil
	}}
}

// stripFence removes a surrounding markdown code fence, if any, so models
// that insist on fenced output still validate.
func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line (```json, ```yaml, or bare ```).
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
