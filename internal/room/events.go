package room

import "github.com/playroomhq/playroom/internal/bots"

// Room loop events. One struct per public operation; every event executes to
// completion before the next is picked up.

type joinEvent struct {
	sessionID string
	username  string
	observer  bool
}

type leaveEvent struct {
	sessionID string
	consented bool
}

type moveEvent struct {
	sessionID string
	pos       Position
}

type chatEvent struct {
	sessionID string
	text      string
}

type privateEvent struct {
	from string
	to   string
	text string
}

type promptEvent struct {
	prompt string
}

// botReplyEvent carries a finished delegate reply back onto the queue so the
// delivery check and emit happen under the room's single writer.
type botReplyEvent struct {
	to   string
	from string
	text string
}

type reloadEvent struct{}

type botInsertEvent struct{ record bots.Record }

type botUpdateEvent struct{ record bots.Record }

type botDeleteEvent struct{ record bots.Record }

type disposeEvent struct{ done chan struct{} }
