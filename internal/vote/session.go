package vote

import (
	"sort"
	"time"
)

type ballot struct {
	choice string
	at     time.Time
	seq    int
}

type Result struct {
	Choice string `json:"choice"`
	Count  int    `json:"count"`
}

// Session holds the current map vote of each player. A player's newer vote
// replaces the older one. Ties are broken by the order in which each choice
// was first voted for in this session.
type Session struct {
	ballots   map[string]ballot
	firstSeen map[string]int
	seq       int
	applied   string
}

func NewSession() *Session {
	return &Session{
		ballots:   make(map[string]ballot),
		firstSeen: make(map[string]int),
	}
}

// Register records player's vote and returns the current leader.
func (s *Session) Register(player string, at time.Time, choice string) string {
	s.seq++
	if _, ok := s.firstSeen[choice]; !ok {
		s.firstSeen[choice] = s.seq
	}
	s.ballots[player] = ballot{choice: choice, at: at, seq: s.seq}

	leader, _ := s.Tally()
	return leader
}

func (s *Session) VoteOf(player string) (string, bool) {
	b, ok := s.ballots[player]
	return b.choice, ok
}

func (s *Session) Voters() int {
	return len(s.ballots)
}

// Results returns the count of current votes for every choice seen in the
// session, most voted first.
func (s *Session) Results() []Result {
	counts := make(map[string]int, len(s.firstSeen))
	for choice := range s.firstSeen {
		counts[choice] = 0
	}
	for _, b := range s.ballots {
		counts[b.choice]++
	}

	results := make([]Result, 0, len(counts))
	for choice, n := range counts {
		results = append(results, Result{Choice: choice, Count: n})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		return s.firstSeen[results[i].Choice] < s.firstSeen[results[j].Choice]
	})
	return results
}

func (s *Session) Tally() (string, bool) {
	if len(s.ballots) == 0 {
		return "", false
	}
	return s.Results()[0].Choice, true
}

func (s *Session) Applied() string {
	return s.applied
}

func (s *Session) markApplied(choice string) {
	s.applied = choice
}
