package visibility

import "sort"

// Delta is the visibility change produced by one write
type Delta struct {
	NowVisible []string
	NowHidden  []string
	Suppressed []string // hidden ids that still hold a stored answer
}

// ComputeDelta diffs pre/post visible ids. Hidden answers are only flagged,
// never deleted. Errors from hasStoredAnswer are returned to the caller.
func ComputeDelta(pre, post []string, hasStoredAnswer func(questionID string) (bool, error)) (Delta, error) {
	preSet := toSet(pre)
	postSet := toSet(post)

	d := Delta{NowVisible: []string{}, NowHidden: []string{}, Suppressed: []string{}}
	for id := range postSet {
		if !preSet[id] {
			d.NowVisible = append(d.NowVisible, id)
		}
	}
	for id := range preSet {
		if !postSet[id] {
			d.NowHidden = append(d.NowHidden, id)
		}
	}
	sort.Strings(d.NowVisible)
	sort.Strings(d.NowHidden)

	for _, id := range d.NowHidden {
		ok, err := hasStoredAnswer(id)
		if err != nil {
			return Delta{}, err
		}
		if ok {
			d.Suppressed = append(d.Suppressed, id)
		}
	}
	return d, nil
}

func toSet(ids []string) map[string]bool {
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}
