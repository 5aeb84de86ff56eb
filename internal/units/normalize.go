// Package units derives matching units from a parsed confirmation payload:
// party resolution, settlement-date grouping, and leg pairing.
package units

// wrapperKeys lists, in probe order, the envelope keys model providers are
// known to nest the confirmation payload under. The raw output may bury the
// payload one or two levels deep (e.g. parsed_result.parsed_content), with
// provider metadata sitting alongside.
var wrapperKeys = []string{"parsed_result", "parsed_content", "result", "data"}

// maxUnwrapDepth bounds how many envelope levels Normalize descends.
const maxUnwrapDepth = 2

// Normalize unwraps known envelope keys until a level containing a
// "transactions" sequence is found, descending at most maxUnwrapDepth
// levels. If no such level exists the deepest level reached is returned and
// the caller's transactions check fails.
func Normalize(payload map[string]any) map[string]any {
	current := payload
	for depth := 0; depth < maxUnwrapDepth; depth++ {
		if _, ok := current["transactions"]; ok {
			return current
		}
		inner, ok := unwrapOnce(current)
		if !ok {
			break
		}
		current = inner
	}
	return current
}

func unwrapOnce(m map[string]any) (map[string]any, bool) {
	for _, key := range wrapperKeys {
		if inner, ok := m[key].(map[string]any); ok {
			return inner, true
		}
	}
	return nil, false
}
