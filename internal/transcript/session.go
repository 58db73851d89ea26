package transcript

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnknownTurn is returned for a turn ID the session has never issued
	ErrUnknownTurn = errors.New("unknown turn")
	// ErrNotLatest is returned when decorating a turn that is not the most
	// recently appended received turn
	ErrNotLatest = errors.New("turn is not the latest received turn")
	// ErrTurnResolved is returned when decorating a resolved turn
	ErrTurnResolved = errors.New("turn is already resolved")
	// ErrDuplicateOptions is returned when a turn already carries a set of
	// the same kind
	ErrDuplicateOptions = errors.New("turn already has options of this kind")
	// ErrNoOptions is returned when a turn carries no set of the given kind
	ErrNoOptions = errors.New("turn has no options of this kind")
)

// TurnID is a stable identifier for a turn
type TurnID string

// Direction tells who authored a turn
type Direction int

const (
	// Sent turns come from the user
	Sent Direction = iota
	// Received turns come from the system
	Received
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	switch d {
	case Sent:
		return "sent"
	case Received:
		return "received"
	default:
		return fmt.Sprintf("direction(%d)", d)
	}
}

// Kind classifies the payload of a turn for rendering
type Kind int

const (
	// KindText is plain text
	KindText Kind = iota
	// KindAudio is the placeholder for a submitted recording
	KindAudio
	// KindError is an error reported to the user
	KindError
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindAudio:
		return "audio"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// OptionKind identifies what an option set is for
type OptionKind int

const (
	// OptionsFeedback rates a transcription
	OptionsFeedback OptionKind = iota
	// OptionsSuggestions picks one of the suggested phrasings
	OptionsSuggestions
	// OptionsCorrection is a free-text entry control
	OptionsCorrection
)

// String returns the string representation of the option kind.
func (k OptionKind) String() string {
	switch k {
	case OptionsFeedback:
		return "feedback"
	case OptionsSuggestions:
		return "suggestions"
	case OptionsCorrection:
		return "correction"
	default:
		return fmt.Sprintf("options(%d)", k)
	}
}

// Option is one selectable choice
type Option struct {
	ID    string
	Label string
}

// OptionSet is a group of controls attached to a turn
type OptionSet struct {
	Kind        OptionKind
	Options     []Option
	Placeholder string
	Disabled    bool
}

// Has reports whether the set offers an option with the given ID
func (s OptionSet) Has(id string) bool {
	for _, o := range s.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// Turn is one entry in the conversation log. Text never changes after
// append; only the option sets and the resolved flag do.
type Turn struct {
	ID        TurnID
	Direction Direction
	Kind      Kind
	Text      string
	At        time.Time
	Options   []OptionSet
	Resolved  bool
}

// OptionSet returns the set of the given kind, if any
func (t Turn) OptionSet(kind OptionKind) (OptionSet, bool) {
	for _, s := range t.Options {
		if s.Kind == kind {
			return s, true
		}
	}
	return OptionSet{}, false
}

func (t *Turn) clone() Turn {
	c := *t
	c.Options = make([]OptionSet, len(t.Options))
	for i, s := range t.Options {
		s.Options = append([]Option(nil), s.Options...)
		c.Options[i] = s
	}
	return c
}

// EventType describes a change to the session
type EventType int

const (
	// TurnAppended - a new turn was added at the end of the log
	TurnAppended EventType = iota
	// TurnDecorated - an option set was attached to a turn
	TurnDecorated
	// TurnUpdated - option sets were disabled or removed, or the turn resolved
	TurnUpdated
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case TurnAppended:
		return "appended"
	case TurnDecorated:
		return "decorated"
	case TurnUpdated:
		return "updated"
	default:
		return fmt.Sprintf("event(%d)", e)
	}
}

// Event is delivered to subscribers after every change. Turn is a snapshot.
type Event struct {
	Type  EventType
	Index int
	Turn  Turn
}

// Session owns the ordered list of turns. Events are queued in mutation
// order and delivered outside the session lock, one event at a time.
type Session struct {
	turns  []*Turn
	index  map[TurnID]int
	logger *slog.Logger
	now    func() time.Time
	mu     sync.RWMutex

	// guarded by deliverMu
	subscribers []func(Event)
	queue       []Event
	delivering  bool
	deliverMu   sync.Mutex
}

// NewSession creates an empty session
func NewSession(logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		index:  make(map[TurnID]int),
		logger: logger.With(slog.String("component", "transcript")),
		now:    time.Now,
	}
}

// Subscribe registers fn for every subsequent event
func (s *Session) Subscribe(fn func(Event)) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Append adds a turn to the end of the log and returns its ID
func (s *Session) Append(direction Direction, kind Kind, text string) TurnID {
	s.mu.Lock()
	turn := &Turn{
		ID:        TurnID(uuid.NewString()),
		Direction: direction,
		Kind:      kind,
		Text:      text,
		At:        s.now(),
	}
	s.turns = append(s.turns, turn)
	idx := len(s.turns) - 1
	s.index[turn.ID] = idx
	s.logger.Debug("Turn appended",
		slog.String("turn_id", string(turn.ID)),
		slog.String("direction", direction.String()),
		slog.String("kind", kind.String()),
	)
	s.commit(Event{Type: TurnAppended, Index: idx, Turn: turn.clone()})
	return turn.ID
}

// Decorate attaches an option set to the latest received turn. Resolved
// turns and duplicate kinds are rejected.
func (s *Session) Decorate(id TurnID, set OptionSet) error {
	s.mu.Lock()
	idx, turn, err := s.lookup(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if latest := s.latestReceived(); latest != idx {
		s.mu.Unlock()
		return fmt.Errorf("decorate %s: %w", id, ErrNotLatest)
	}
	if turn.Resolved {
		s.mu.Unlock()
		return fmt.Errorf("decorate %s: %w", id, ErrTurnResolved)
	}
	if _, ok := turn.OptionSet(set.Kind); ok {
		s.mu.Unlock()
		return fmt.Errorf("decorate %s with %s: %w", id, set.Kind, ErrDuplicateOptions)
	}

	set.Options = append([]Option(nil), set.Options...)
	set.Disabled = false
	turn.Options = append(turn.Options, set)
	s.commit(Event{Type: TurnDecorated, Index: idx, Turn: turn.clone()})
	return nil
}

// Disable permanently disables the set of the given kind
func (s *Session) Disable(id TurnID, kind OptionKind) error {
	return s.update(id, func(t *Turn) error {
		for i := range t.Options {
			if t.Options[i].Kind == kind {
				t.Options[i].Disabled = true
				return nil
			}
		}
		return fmt.Errorf("disable %s on %s: %w", kind, id, ErrNoOptions)
	})
}

// Remove detaches the set of the given kind
func (s *Session) Remove(id TurnID, kind OptionKind) error {
	return s.update(id, func(t *Turn) error {
		for i := range t.Options {
			if t.Options[i].Kind == kind {
				t.Options = append(t.Options[:i], t.Options[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("remove %s on %s: %w", kind, id, ErrNoOptions)
	})
}

// Resolve marks the turn resolved and disables every set it carries.
// Resolving twice has no further effect.
func (s *Session) Resolve(id TurnID) error {
	return s.update(id, func(t *Turn) error {
		t.Resolved = true
		for i := range t.Options {
			t.Options[i].Disabled = true
		}
		return nil
	})
}

// Turn returns a snapshot of the turn with the given ID
func (s *Session) Turn(id TurnID) (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.index[id]
	if !ok {
		return Turn{}, false
	}
	return s.turns[idx].clone(), true
}

// Turns returns snapshots of all turns in append order
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Turn, len(s.turns))
	for i, t := range s.turns {
		out[i] = t.clone()
	}
	return out
}

// Latest returns the most recently appended turn
func (s *Session) Latest() (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.turns) == 0 {
		return Turn{}, false
	}
	return s.turns[len(s.turns)-1].clone(), true
}

// Len returns the number of turns
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

func (s *Session) update(id TurnID, fn func(*Turn) error) error {
	s.mu.Lock()
	idx, turn, err := s.lookup(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := fn(turn); err != nil {
		s.mu.Unlock()
		return err
	}
	s.commit(Event{Type: TurnUpdated, Index: idx, Turn: turn.clone()})
	return nil
}

// lookup must be called with mu held
func (s *Session) lookup(id TurnID) (int, *Turn, error) {
	idx, ok := s.index[id]
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", ErrUnknownTurn, id)
	}
	return idx, s.turns[idx], nil
}

// latestReceived must be called with mu held
func (s *Session) latestReceived() int {
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Direction == Received {
			return i
		}
	}
	return -1
}

// commit must be called with mu held and releases it. The event is queued
// before mu is dropped, so the queue follows mutation order. The caller then
// drains the queue unless another goroutine already is. Subscribers run with
// no lock held: they may read the session, and a mutation made from a
// subscriber is delivered after the current event.
func (s *Session) commit(ev Event) {
	s.deliverMu.Lock()
	s.queue = append(s.queue, ev)
	s.deliverMu.Unlock()
	s.mu.Unlock()

	s.drain()
}

func (s *Session) drain() {
	s.deliverMu.Lock()
	if s.delivering {
		s.deliverMu.Unlock()
		return
	}
	s.delivering = true

	for len(s.queue) > 0 {
		ev := s.queue[0]
		s.queue = s.queue[1:]
		subs := slices.Clone(s.subscribers)
		s.deliverMu.Unlock()

		for _, fn := range subs {
			fn(ev)
		}

		s.deliverMu.Lock()
	}

	s.queue = nil
	s.delivering = false
	s.deliverMu.Unlock()
}
