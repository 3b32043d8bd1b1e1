package controlconn

import "math/rand"

// QueryPlan yields candidate hosts to contact, one at a time, until
// exhausted (spec §3: "Query plan"). It is consumed once.
type QueryPlan interface {
	// Next returns the next host to try, or ok=false when the plan is
	// exhausted.
	Next() (*Host, bool)
}

// StartupQueryPlan is the randomized one-pass iterator used for the first
// connect (Start); reconnects take their plan from Session.NewQueryPlan
// instead (spec §3, §8 P1). It picks a
// random starting index modulo len(hosts) and visits every host exactly
// once, cyclically, for exactly len(hosts) elements.
//
// Grounded on gocql's shuffleHosts (control.go), generalized from a full
// Fisher-Yates shuffle into the cyclic walk spec.md specifies, since the
// spec's exact phrasing ("random starting index ... traversing cyclically")
// describes a rotation, not a shuffle.
type StartupQueryPlan struct {
	hosts []*Host
	start int
	seen  int
}

// NewStartupQueryPlan builds a plan over hosts, seeded by rng. If rng is
// nil, math/rand's package-level source is used.
func NewStartupQueryPlan(hosts []*Host, rng *rand.Rand) *StartupQueryPlan {
	p := &StartupQueryPlan{hosts: hosts}
	if len(hosts) == 0 {
		return p
	}
	if rng != nil {
		p.start = rng.Intn(len(hosts))
	} else {
		p.start = rand.Intn(len(hosts))
	}
	return p
}

func (p *StartupQueryPlan) Next() (*Host, bool) {
	if p.seen >= len(p.hosts) {
		return nil, false
	}
	h := p.hosts[(p.start+p.seen)%len(p.hosts)]
	p.seen++
	return h, true
}

// Remaining reports how many hosts have not yet been yielded.
func (p *StartupQueryPlan) Remaining() int {
	return len(p.hosts) - p.seen
}
