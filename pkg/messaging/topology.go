package messaging

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/nordbyerik/gaims/pkg/core"
)

// Topology kinds accepted by NewTopology.
const (
	FullyConnected = "full"
	Sparse         = "sparse"
	Linear         = "linear"
	Ring           = "ring"
	Star           = "star"
)

// Topology is the directed graph of who should talk to whom. It is advisory:
// the Medium delivers messages regardless of adjacency.
type Topology struct {
	kind      string
	agents    []string
	adjacency map[string][]string
}

// NewTopology builds a topology of the given kind over agents. The seed is
// only used by sparse topologies.
func NewTopology(kind string, agents []string, seed int64) (*Topology, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case FullyConnected, "fully_connected", "fully-connected":
		return NewFullyConnected(agents)
	case Sparse:
		return NewSparse(agents, seed)
	case Linear:
		return NewLinear(agents)
	case Ring:
		return NewRing(agents)
	case Star:
		return NewStar(agents)
	default:
		return nil, fmt.Errorf("%w: unknown topology %q", core.ErrConstruction, kind)
	}
}

func newTopology(kind string, agents []string) (*Topology, error) {
	seen := make(map[string]bool, len(agents))
	for _, a := range agents {
		if a == "" {
			return nil, fmt.Errorf("%w: %s topology has an empty agent id", core.ErrConstruction, kind)
		}
		if seen[a] {
			return nil, fmt.Errorf("%w: %s topology has duplicate agent %q", core.ErrConstruction, kind, a)
		}
		seen[a] = true
	}
	t := &Topology{
		kind:      kind,
		agents:    append([]string(nil), agents...),
		adjacency: make(map[string][]string, len(agents)),
	}
	for _, a := range agents {
		t.adjacency[a] = []string{}
	}
	return t, nil
}

// NewFullyConnected lets every agent reach every other agent.
func NewFullyConnected(agents []string) (*Topology, error) {
	t, err := newTopology(FullyConnected, agents)
	if err != nil {
		return nil, err
	}
	for _, from := range agents {
		for _, to := range agents {
			if to != from {
				t.adjacency[from] = append(t.adjacency[from], to)
			}
		}
	}
	return t, nil
}

// NewSparse gives each agent an independently sampled, non-empty random subset
// of the other agents. The same seed always yields the same graph. An agent
// with nobody else to reach gets an empty entry.
func NewSparse(agents []string, seed int64) (*Topology, error) {
	t, err := newTopology(Sparse, agents)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	for i, from := range agents {
		others := make([]int, 0, len(agents)-1)
		for j := range agents {
			if j != i {
				others = append(others, j)
			}
		}
		if len(others) == 0 {
			continue
		}
		k := 1 + rng.Intn(len(others))
		rng.Shuffle(len(others), func(a, b int) { others[a], others[b] = others[b], others[a] })
		chosen := make(map[int]bool, k)
		for _, j := range others[:k] {
			chosen[j] = true
		}
		// keep the agents' own order so adjacency is stable to read
		for j, to := range agents {
			if chosen[j] {
				t.adjacency[from] = append(t.adjacency[from], to)
			}
		}
	}
	return t, nil
}

// NewLinear lets agent i reach agent i+1. The last agent reaches nobody.
func NewLinear(agents []string) (*Topology, error) {
	t, err := newTopology(Linear, agents)
	if err != nil {
		return nil, err
	}
	for i := 0; i+1 < len(agents); i++ {
		t.adjacency[agents[i]] = []string{agents[i+1]}
	}
	return t, nil
}

// NewRing lets agent i reach agent (i+1) mod n. A lone agent reaches itself.
func NewRing(agents []string) (*Topology, error) {
	t, err := newTopology(Ring, agents)
	if err != nil {
		return nil, err
	}
	for i, a := range agents {
		t.adjacency[a] = []string{agents[(i+1)%len(agents)]}
	}
	return t, nil
}

// NewStar makes agents[0] the hub. The hub reaches every peripheral and each
// peripheral reaches only the hub.
func NewStar(agents []string) (*Topology, error) {
	t, err := newTopology(Star, agents)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return t, nil
	}
	hub := agents[0]
	t.adjacency[hub] = append([]string{}, agents[1:]...)
	for _, a := range agents[1:] {
		t.adjacency[a] = []string{hub}
	}
	return t, nil
}

func (t *Topology) Kind() string { return t.kind }

// Agents returns the participating agents in construction order.
func (t *Topology) Agents() []string {
	return append([]string(nil), t.agents...)
}

// Partners returns the agents id may reach, or nil for an unknown agent.
func (t *Topology) Partners(id string) []string {
	p, ok := t.adjacency[id]
	if !ok {
		return nil
	}
	return append([]string{}, p...)
}

// Has reports whether id is a participating agent.
func (t *Topology) Has(id string) bool {
	_, ok := t.adjacency[id]
	return ok
}

// Adjacent reports whether from may reach to.
func (t *Topology) Adjacent(from, to string) bool {
	for _, p := range t.adjacency[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Adjacency returns a copy of the full adjacency mapping.
func (t *Topology) Adjacency() map[string][]string {
	out := make(map[string][]string, len(t.adjacency))
	for k, v := range t.adjacency {
		out[k] = append([]string{}, v...)
	}
	return out
}

func (t *Topology) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s topology with %d agents\n", t.kind, len(t.agents))
	for _, a := range t.agents {
		fmt.Fprintf(&b, "  %s -> [%s]\n", a, strings.Join(t.adjacency[a], ", "))
	}
	return b.String()
}
