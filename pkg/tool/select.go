package tool

// Select picks the tools exposed for one message. The default policy
// returns every enabled tool in its original order. Relevance filtering
// is deliberately left to the backend: the contract is a subset of
// available, order preserved, no side effects.
func Select(message string, available []Definition) []Definition {
	selected := make([]Definition, 0, len(available))
	for _, def := range available {
		if def.Enabled {
			selected = append(selected, def)
		}
	}
	return selected
}

// Names returns the tool names in order, mostly for logging and the
// response's toolsUsed field.
func Names(defs []Definition) []string {
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	return names
}
