// Package executor turns an ordered action list into protocol commands
// against a live session, tracking each action's outcome with
// per-action timeout, retry and abort semantics.
package executor

import "fmt"

// Kind identifies one of the supported action variants. The set is
// closed: dispatch handles every kind exhaustively and anything else is
// recorded as unsupported.
type Kind string

const (
	KindNavigate         Kind = "navigate"
	KindClick            Kind = "click"
	KindTypeText         Kind = "type_text"
	KindWaitForCondition Kind = "wait_for_condition"
	KindEvaluateScript   Kind = "evaluate_script"
	KindScreenshot       Kind = "screenshot"
	KindRunNative        Kind = "run_native"
)

// Kinds lists every supported action kind.
func Kinds() []Kind {
	return []Kind{
		KindNavigate,
		KindClick,
		KindTypeText,
		KindWaitForCondition,
		KindEvaluateScript,
		KindScreenshot,
		KindRunNative,
	}
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	switch k {
	case KindNavigate, KindClick, KindTypeText, KindWaitForCondition,
		KindEvaluateScript, KindScreenshot, KindRunNative:
		return true
	}
	return false
}

// Idempotent reports whether retrying k is safe without caveats.
// Retrying type_text can append to an already partially typed field and
// run_native can repeat a side effect, so both default to a single
// attempt (see DefaultPolicy).
func (k Kind) Idempotent() bool {
	switch k {
	case KindNavigate, KindWaitForCondition, KindScreenshot:
		return true
	}
	return false
}

// Action is one unit of planned browser or native interaction. It is
// immutable once produced by the planner; ID is the ordinal position in
// the plan.
type Action struct {
	ID     int                    `json:"id"`
	Kind   Kind                   `json:"kind"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// StringParam returns the named parameter if it is a non-empty string.
func (a Action) StringParam(key string) (string, bool) {
	v, ok := a.Params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// StringsParam returns the named parameter as a string slice. Both
// []string and []interface{} of strings are accepted, since params
// may come from decoded JSON.
func (a Action) StringsParam(key string) ([]string, bool) {
	switch v := a.Params[key].(type) {
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func (a Action) String() string {
	return fmt.Sprintf("action %d (%s)", a.ID, a.Kind)
}
