package engine

import (
	"fmt"
	"time"

	"github.com/mcdev12/cubedraft/go/internal/draft/events"
)

const maxFollowUps = 8

// Transition seals ev, applies it to a copy of s and then appends every follow-up the
// new state implies. s itself is not modified.
func (s *State) Transition(sender string, ev events.Event, now time.Time) (*State, []events.Envelope, error) {
	next := s.Clone()

	env, err := events.Seal(s.Session.ID, sender, ev, now)
	if err != nil {
		return nil, nil, err
	}
	if err := next.Apply(env); err != nil {
		return nil, nil, fmt.Errorf("failed to apply %s: %w", ev.Type, err)
	}
	out := []events.Envelope{env}

	more, err := next.settle(sender, now)
	if err != nil {
		return nil, nil, err
	}
	return next, append(out, more...), nil
}

// Settle applies pending follow-ups to a copy of s. It returns nil envelopes when
// nothing is pending.
func (s *State) Settle(sender string, now time.Time) (*State, []events.Envelope, error) {
	next := s.Clone()
	envs, err := next.settle(sender, now)
	if err != nil {
		return nil, nil, err
	}
	return next, envs, nil
}

func (s *State) settle(sender string, now time.Time) ([]events.Envelope, error) {
	var out []events.Envelope
	for i := 0; i < maxFollowUps; i++ {
		ev, ok := s.FollowUp()
		if !ok {
			return out, nil
		}
		env, err := events.Seal(s.Session.ID, sender, ev, now)
		if err != nil {
			return nil, err
		}
		if err := s.Apply(env); err != nil {
			return nil, fmt.Errorf("failed to apply %s: %w", ev.Type, err)
		}
		out = append(out, env)
	}
	return nil, fmt.Errorf("session %s did not settle after %d follow-ups", s.Session.ID, maxFollowUps)
}
