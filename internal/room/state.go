package room

// Position is a participant's 2D location. Coordinates are client-declared
// and accepted as-is; the server does no bounds or collision checks.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Kind distinguishes client-backed players from server-driven bots.
type Kind int

const (
	KindPlayer Kind = iota
	KindBot
)

// Participant is one entity inside a room. Bot participants additionally
// carry the prompt and the roster record id they were materialized from.
type Participant struct {
	SessionID string
	Username  string
	// HeroType selects the client-side sprite (1-12).
	HeroType int
	Position Position
	Kind     Kind

	// Bot-only fields.
	Prompt string
	BotID  int64
}

// State is the authoritative room state. It is owned exclusively by the room
// loop; nothing outside the loop may touch it.
type State struct {
	participants map[string]*Participant
	order        []string
	messages     []string

	// bots indexes the session ids currently backed by a bot participant,
	// and byBotID joins them to roster record ids. Both are updated in the
	// same step as the participant map.
	bots    map[string]bool
	byBotID map[int64]string
}

func newState() *State {
	return &State{
		participants: make(map[string]*Participant),
		bots:         make(map[string]bool),
		byBotID:      make(map[int64]string),
	}
}

func (s *State) get(sessionID string) *Participant {
	return s.participants[sessionID]
}

func (s *State) add(p *Participant) {
	if _, ok := s.participants[p.SessionID]; !ok {
		s.order = append(s.order, p.SessionID)
	}
	s.participants[p.SessionID] = p
	if p.Kind == KindBot {
		s.bots[p.SessionID] = true
		s.byBotID[p.BotID] = p.SessionID
	}
}

func (s *State) remove(sessionID string) bool {
	p, ok := s.participants[sessionID]
	if !ok {
		return false
	}
	delete(s.participants, sessionID)
	if p.Kind == KindBot {
		delete(s.bots, sessionID)
		delete(s.byBotID, p.BotID)
	}
	for i, id := range s.order {
		if id == sessionID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *State) botByRecordID(botID int64) *Participant {
	sid, ok := s.byBotID[botID]
	if !ok {
		return nil
	}
	return s.participants[sid]
}

// sessionIDs returns all participant session ids in insertion order.
func (s *State) sessionIDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// ParticipantSnapshot is the wire form of one participant.
type ParticipantSnapshot struct {
	SessionID string   `json:"sessionId"`
	Username  string   `json:"username"`
	HeroType  int      `json:"heroType"`
	Position  Position `json:"position"`
	Bot       bool     `json:"bot"`
}

// Snapshot is the wire form of the full room state, broadcast to clients
// after every mutation.
type Snapshot struct {
	Players  []ParticipantSnapshot `json:"players"`
	Messages []string              `json:"messages"`
}

func (s *State) snapshot() Snapshot {
	snap := Snapshot{
		Players:  make([]ParticipantSnapshot, 0, len(s.order)),
		Messages: append([]string(nil), s.messages...),
	}
	for _, sid := range s.order {
		p := s.participants[sid]
		snap.Players = append(snap.Players, ParticipantSnapshot{
			SessionID: p.SessionID,
			Username:  p.Username,
			HeroType:  p.HeroType,
			Position:  p.Position,
			Bot:       p.Kind == KindBot,
		})
	}
	return snap
}
