// Package syncplan decides which local files still need to reach the remote folder.
package syncplan

import "github.com/jun/scandrive/internal/adapter"

// Decision pairs a local stub with whether it is already present remotely.
type Decision struct {
	Stub adapter.FileStub
	Skip bool
}

// Plan returns one decision per stub, in input order. A stub is skipped when
// its name is in existing. Names are compared exactly.
func Plan(existing map[string]struct{}, stubs []adapter.FileStub) []Decision {
	decisions := make([]Decision, 0, len(stubs))
	for _, s := range stubs {
		_, found := existing[s.Name]
		decisions = append(decisions, Decision{Stub: s, Skip: found})
	}
	return decisions
}

// Pending counts decisions that still need an upload.
func Pending(decisions []Decision) int {
	n := 0
	for _, d := range decisions {
		if !d.Skip {
			n++
		}
	}
	return n
}
