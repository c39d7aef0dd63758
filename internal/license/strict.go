package license

// resolveStrictAssociation finds requestedID among associations. An
// association is required when strict mode is on and the license has at
// least one entity of that kind; a required association that is missing or
// unmatched yields denial. Otherwise an unmatched request resolves to nil.
func resolveStrictAssociation[T any](associations []T, requestedID string, strict bool, idOf func(T) string, denial Code) (*T, Code, bool) {
	required := strict && len(associations) > 0

	if requestedID != "" {
		for i := range associations {
			if idOf(associations[i]) == requestedID {
				return &associations[i], "", true
			}
		}
	}

	if required {
		return nil, denial, false
	}
	return nil, "", true
}
