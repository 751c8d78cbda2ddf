package engine

import (
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/models"
)

// Rochester is the rotating pack working state. Rounds[r][p] is pack p of round r and
// Assignment maps each player to the pack they currently hold.
type Rochester struct {
	Rounds     [][][]int
	Round      int
	Turn       int
	Assignment []int
	Selected   []bool
	Dropped    []int
}

func newRochester(indexes []int, players int, settings models.DraftSettings) *Rochester {
	r := &Rochester{
		Assignment: identity(players),
		Selected:   make([]bool, players),
	}
	packSize := settings.PackSize
	if packSize <= 0 {
		packSize = 1
	}

	roundSize := players * packSize
	full := len(indexes) / roundSize
	pos := 0
	for i := 0; i < full; i++ {
		round := make([][]int, players)
		for p := range round {
			round[p] = append([]int{}, indexes[pos:pos+packSize]...)
			pos += packSize
		}
		r.Rounds = append(r.Rounds, round)
	}

	left := indexes[pos:]
	if round, ok := trailingRound(left, players, settings.TrailingRound); ok {
		r.Rounds = append(r.Rounds, round)
		left = nil
	}
	if len(left) > 0 {
		r.Dropped = append([]int{}, left...)
		log.Warn().
			Int("dropped", len(left)).
			Str("policy", string(settings.TrailingRound)).
			Msg("rochester trailing cards do not fill a round")
	}
	return r
}

// trailingRound builds a partial last round. Under the drop policy it only exists when
// the leftovers split into equal non-empty packs. Under keep every pack gets at least one
// card and sizes differ by at most one.
func trailingRound(left []int, players int, policy models.TrailingRoundPolicy) ([][]int, bool) {
	if len(left) < players {
		return nil, false
	}
	if policy != models.TrailingRoundKeep && len(left)%players != 0 {
		return nil, false
	}

	base, extra := len(left)/players, len(left)%players
	round := make([][]int, players)
	pos := 0
	for p := range round {
		size := base
		if p < extra {
			size++
		}
		round[p] = append([]int{}, left[pos:pos+size]...)
		pos += size
	}
	return round, true
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func (r *Rochester) Method() models.DraftMethod { return models.DraftMethodRochester }

func (r *Rochester) clone() Board {
	c := &Rochester{
		Rounds:     make([][][]int, len(r.Rounds)),
		Round:      r.Round,
		Turn:       r.Turn,
		Assignment: append([]int(nil), r.Assignment...),
		Selected:   append([]bool(nil), r.Selected...),
		Dropped:    r.Dropped,
	}
	for i, round := range r.Rounds {
		c.Rounds[i] = make([][]int, len(round))
		for p, pack := range round {
			c.Rounds[i][p] = append([]int{}, pack...)
		}
	}
	return c
}

// Pack returns the pack currently held by a player.
func (r *Rochester) Pack(player int) []int {
	if r.Round >= len(r.Rounds) || player < 0 || player >= len(r.Assignment) {
		return nil
	}
	return r.Rounds[r.Round][r.Assignment[player]]
}

// PlayerFinished reports whether a player is in the final round holding an empty pack.
func (r *Rochester) PlayerFinished(player int) bool {
	return r.Round >= len(r.Rounds)-1 && len(r.Pack(player)) == 0
}

// TurnComplete reports whether every player has acted or has nothing left to take.
func (r *Rochester) TurnComplete() bool {
	if r.Round >= len(r.Rounds) {
		return false
	}
	for p, done := range r.Selected {
		if !done && len(r.Pack(p)) > 0 {
			return false
		}
	}
	return true
}

// Exhausted reports whether no round has cards left.
func (r *Rochester) Exhausted() bool {
	if r.Round >= len(r.Rounds) {
		return true
	}
	return r.Round == len(r.Rounds)-1 && r.roundEmpty()
}

func (r *Rochester) roundEmpty() bool {
	for _, pack := range r.Rounds[r.Round] {
		if len(pack) > 0 {
			return false
		}
	}
	return true
}

// rotation computes the transition that ends the current turn. ok is false when the
// last round is drained and the session should finish instead.
func (r *Rochester) rotation() (events.PacksRotatedPayload, bool) {
	out := events.PacksRotatedPayload{FromRound: r.Round, FromTurn: r.Turn}
	n := len(r.Assignment)

	if r.roundEmpty() {
		if r.Round+1 >= len(r.Rounds) {
			return out, false
		}
		out.Round = r.Round + 1
		out.Turn = 0
		out.PackAssignments = identity(n)
		return out, true
	}

	dir := 1
	if r.Round%2 == 1 {
		dir = -1
	}
	out.Round = r.Round
	out.Turn = r.Turn + 1
	out.PackAssignments = make([]int, n)
	for p, pack := range r.Assignment {
		out.PackAssignments[p] = ((pack+dir)%n + n) % n
	}
	return out, true
}

// PickCard proposes taking one card. For Rochester it must be in the player's assigned
// pack; for asynchronous drafts it must be in the player's current pack.
func (s *State) PickCard(player, globalIndex int) (events.Event, error) {
	switch b := s.Board.(type) {
	case *Rochester:
		return s.pickRochester(b, player, globalIndex)
	case *Async:
		return s.pickAsync(b, player, globalIndex)
	default:
		return events.Event{}, ErrWrongMethod
	}
}

func (s *State) pickRochester(r *Rochester, player, globalIndex int) (events.Event, error) {
	if err := s.checkActor(player); err != nil {
		return events.Event{}, err
	}
	if r.Selected[player] {
		return events.Event{}, ErrNotYourTurn
	}
	if !slices.Contains(r.Pack(player), globalIndex) {
		return events.Event{}, ErrCardNotAvailable
	}
	return events.Event{
		Type: events.TypePlayerSelected,
		Payload: events.PlayerSelectedPayload{
			PlayerIndex: player,
			PackIndex:   r.Assignment[player],
			CardIndex:   globalIndex,
			Round:       r.Round,
			Turn:        r.Turn,
		},
	}, nil
}

func (s *State) applyPlayerSelected(r *Rochester, env events.Envelope, p events.PlayerSelectedPayload) error {
	if p.PlayerIndex < 0 || p.PlayerIndex >= s.numPlayers() ||
		p.Round < 0 || p.Round >= len(r.Rounds) ||
		p.PackIndex < 0 || p.PackIndex >= len(r.Rounds[p.Round]) {
		s.stale(env, "selection out of range")
		return nil
	}

	// A player takes exactly one card from its assigned pack per turn.
	if p.Round != r.Round || p.Turn != r.Turn {
		s.stale(env, "turn already rotated")
		return nil
	}
	if r.Selected[p.PlayerIndex] {
		s.stale(env, "player already selected this turn")
		return nil
	}
	if r.Assignment[p.PlayerIndex] != p.PackIndex {
		s.stale(env, "pack is not assigned to the player")
		return nil
	}

	pack := r.Rounds[p.Round][p.PackIndex]
	i := slices.Index(pack, p.CardIndex)
	if i < 0 {
		s.stale(env, "card already taken")
		return nil
	}
	r.Rounds[p.Round][p.PackIndex] = slices.Delete(pack, i, i+1)
	s.take(p.PlayerIndex, p.CardIndex)
	r.Selected[p.PlayerIndex] = true
	return nil
}

func (s *State) applyPacksRotated(r *Rochester, env events.Envelope, p events.PacksRotatedPayload) error {
	if p.FromRound != r.Round || p.FromTurn != r.Turn {
		s.stale(env, "rotation already applied")
		return nil
	}
	if len(p.PackAssignments) != len(r.Assignment) || p.Round >= len(r.Rounds) {
		s.stale(env, "rotation does not fit this session")
		return nil
	}
	r.Round = p.Round
	r.Turn = p.Turn
	copy(r.Assignment, p.PackAssignments)
	for i := range r.Selected {
		r.Selected[i] = false
	}
	return nil
}
