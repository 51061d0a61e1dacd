package match

import (
	"sort"
	"strings"

	"github.com/sbrops/groundcheck-cli/internal/driver"
)

// Config tunes the matcher. Zero values take the defaults below.
type Config struct {
	Threshold      float64  // minimum score for a match
	Margin         float64  // required lead over the runner-up
	SubstringBonus float64  // one name contains the other
	AddressBonus   float64  // address token overlap agrees
	AddressOverlap float64  // overlap ratio counted as agreement
	MinTokenLen    int      // shorter tokens are dropped
	StopWords      []string // replaces the built-in stop word list
}

// Default scoring constants.
const (
	DefaultThreshold      = 0.60
	DefaultMargin         = 0.05
	DefaultSubstringBonus = 0.25
	DefaultAddressBonus   = 0.10
	DefaultAddressOverlap = 0.50
)

func (c Config) withDefaults() Config {
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Margin == 0 {
		c.Margin = DefaultMargin
	}
	if c.SubstringBonus == 0 {
		c.SubstringBonus = DefaultSubstringBonus
	}
	if c.AddressBonus == 0 {
		c.AddressBonus = DefaultAddressBonus
	}
	if c.AddressOverlap == 0 {
		c.AddressOverlap = DefaultAddressOverlap
	}
	if c.MinTokenLen == 0 {
		c.MinTokenLen = MinTokenLen
	}
	return c
}

func (c Config) tokens(s string) map[string]struct{} {
	stop := stopWords
	if c.StopWords != nil {
		stop = make(map[string]struct{}, len(c.StopWords))
		for _, w := range c.StopWords {
			stop[strings.ToLower(w)] = struct{}{}
		}
	}
	return tokenize(s, c.MinTokenLen, stop)
}

// Outcome classifies a match decision.
type Outcome int

// Match outcomes.
const (
	NoMatch Outcome = iota
	Selected
	Ambiguous
)

// Scored is one candidate with its computed score, in rank order.
type Scored struct {
	Candidate driver.Candidate
	Score     float64
	AddrBonus bool
	Index     int // position in the original candidate slice
}

// Decision is the result of matching one record against a candidate set.
type Decision struct {
	Outcome Outcome
	Ranked  []Scored // best first; empty when no candidates were given
}

// Best returns the top-ranked candidate. Valid only when Outcome is
// Selected.
func (d Decision) Best() driver.Candidate {
	return d.Ranked[0].Candidate
}

// Match scores candidates against the record's name and address and
// decides whether the best one is a confident match. The same inputs
// always produce the same decision.
func Match(cfg Config, name, address string, candidates []driver.Candidate) Decision {
	cfg = cfg.withDefaults()
	if len(candidates) == 0 {
		return Decision{Outcome: NoMatch}
	}

	queryName := Normalize(name)
	queryTokens := cfg.tokens(name)
	addrTokens := cfg.tokens(address)

	ranked := make([]Scored, 0, len(candidates))
	for i, cand := range candidates {
		score := jaccard(queryTokens, cfg.tokens(cand.Name))

		candName := Normalize(cand.Name)
		if queryName != "" && candName != "" &&
			(strings.Contains(candName, queryName) || strings.Contains(queryName, candName)) {
			score += cfg.SubstringBonus
		}
		if score > 1 {
			score = 1
		}

		addrBonus := false
		if len(addrTokens) > 0 {
			candAddr := cfg.tokens(cand.Address)
			if overlap(addrTokens, candAddr) >= cfg.AddressOverlap {
				addrBonus = true
			}
		}

		ranked = append(ranked, Scored{Candidate: cand, Score: score, AddrBonus: addrBonus, Index: i})
	}

	// Address agreement breaks ties between equal name scores but never
	// lifts a weak name match over the threshold.
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].Score != ranked[b].Score {
			return ranked[a].Score > ranked[b].Score
		}
		if ranked[a].AddrBonus != ranked[b].AddrBonus {
			return ranked[a].AddrBonus
		}
		return ranked[a].Index < ranked[b].Index
	})

	top := ranked[0]
	if top.Score < cfg.Threshold {
		return Decision{Outcome: NoMatch, Ranked: ranked}
	}
	if len(ranked) > 1 {
		runner := ranked[1]
		if top.Score-runner.Score <= cfg.Margin && top.AddrBonus == runner.AddrBonus {
			return Decision{Outcome: Ambiguous, Ranked: ranked}
		}
	}
	return Decision{Outcome: Selected, Ranked: ranked}
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// overlap is the share of a's tokens present in b.
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a))
}
