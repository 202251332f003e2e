package attributes

// TransitionEnv returns the variable prototype of transition expressions.
// Runtime environments must use the same value types.
func TransitionEnv() map[string]any {
	return map[string]any{
		"from":         "",
		"to":           "",
		"from_id":      0,
		"to_id":        0,
		"state":        0,
		"status":       "",
		"prio_current": 0,
		"prio_real":    0,
		"wait_id":      0,
		"event_type":   0,
		"sub_tick":     0,
	}
}

// SessionEnv builds the environment of session expressions.
func SessionEnv(top, prefix, sessionID string) map[string]any {
	return map[string]any{
		"top":        top,
		"prefix":     prefix,
		"session_id": sessionID,
	}
}

func sessionEnvPrototype() map[string]any {
	return SessionEnv("", "", "")
}
