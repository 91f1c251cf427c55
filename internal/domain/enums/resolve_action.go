package enums

import "strings"

type ResolveAction string

const (
	ResolveActionDelete ResolveAction = "delete"
	ResolveActionClear  ResolveAction = "clear"
)

func ParseResolveAction(raw string) (ResolveAction, bool) {
	switch ResolveAction(strings.ToLower(strings.TrimSpace(raw))) {
	case ResolveActionDelete:
		return ResolveActionDelete, true
	case ResolveActionClear, "reviewed", "unreport":
		return ResolveActionClear, true
	default:
		return "", false
	}
}
