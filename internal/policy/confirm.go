package policy

import "strings"

// RequireConfirmation enforces an explicit confirmation for destructive
// actions. assumeYes skips the check.
func RequireConfirmation(action Action, resource string, id int64, confirmed, assumeYes bool) error {
	if !destructive(action) || confirmed || assumeYes {
		return nil
	}
	name := strings.TrimSpace(resource)
	if name == "" {
		name = "record"
	}
	return refuse("%s %s %d requires confirmation (repeat with \"confirm\" or --confirm)", action, name, id)
}

func destructive(action Action) bool {
	return action == ActionDelete
}
