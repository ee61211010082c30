package studysync

import "strings"

// Task priorities in the local vocabulary.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Task priorities in the remote schema's vocabulary.
const (
	RemotePriorityLow    = "niedrig"
	RemotePriorityMedium = "mittel"
	RemotePriorityHigh   = "hoch"
)

var priorityToRemote = map[string]string{
	PriorityLow:    RemotePriorityLow,
	PriorityMedium: RemotePriorityMedium,
	PriorityHigh:   RemotePriorityHigh,
}

var priorityFromRemote = map[string]string{
	RemotePriorityLow:    PriorityLow,
	RemotePriorityMedium: PriorityMedium,
	RemotePriorityHigh:   PriorityHigh,
}

// PriorityToRemote maps a local priority to the remote vocabulary. Values
// already in the remote vocabulary pass through; anything else is the least
// urgent level.
func PriorityToRemote(v any) string {
	p := normalizePriority(v)
	if r, ok := priorityToRemote[p]; ok {
		return r
	}
	if _, ok := priorityFromRemote[p]; ok {
		return p
	}
	return RemotePriorityLow
}

// PriorityFromRemote maps a remote priority to the local vocabulary,
// defaulting to the least urgent level.
func PriorityFromRemote(v any) string {
	p := normalizePriority(v)
	if l, ok := priorityFromRemote[p]; ok {
		return l
	}
	if _, ok := priorityToRemote[p]; ok {
		return p
	}
	return PriorityLow
}

func normalizePriority(v any) string {
	s, _ := v.(string)
	return strings.ToLower(strings.TrimSpace(s))
}
