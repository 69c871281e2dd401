package confirm

import (
	"github.com/samber/lo"

	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
)

// Merge reconciles the in-memory action list of a thread with a freshly
// normalized feed snapshot. It is a pure function of its inputs; neither
// slice is modified.
//
// Rules, keyed by ClientID:
//   - a local confirmed/rejected status is kept unless the feed reports a
//     different terminal status;
//   - a fresh terminal status replaces a local pending one;
//   - local resolved items and locally synthesized items (no source call)
//     missing from the feed are kept; feed-sourced pending items missing
//     from the feed are dropped;
//   - when the feed has no pending item at all, every pending item is
//     dropped and only resolved history remains.
//
// Existing items keep their position; new items are appended in feed order.
func Merge(local, fresh []actions.Action) []actions.Action {
	byID := lo.SliceToMap(fresh, func(a actions.Action) (string, actions.Action) {
		return a.ClientID, a
	})
	actionable := lo.SomeBy(fresh, func(a actions.Action) bool { return a.Pending() })

	out := make([]actions.Action, 0, len(local)+len(fresh))
	seen := make(map[string]bool, len(local))
	for _, l := range local {
		if seen[l.ClientID] {
			continue
		}
		seen[l.ClientID] = true

		f, inFeed := byID[l.ClientID]
		switch {
		case inFeed:
			out = append(out, mergeOne(l, f))
		case !l.Pending():
			out = append(out, l)
		case l.CallID() == "":
			out = append(out, l)
		}
	}
	for _, f := range fresh {
		if seen[f.ClientID] {
			continue
		}
		seen[f.ClientID] = true
		out = append(out, f)
	}

	if !actionable {
		out = lo.Reject(out, func(a actions.Action, _ int) bool { return a.Pending() })
	}
	return out
}

func mergeOne(local, fresh actions.Action) actions.Action {
	if !local.Pending() {
		if fresh.Status.Terminal() && fresh.Status != local.Status {
			local.Status = fresh.Status
		}
		return local
	}
	return fresh
}
