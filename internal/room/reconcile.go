package room

import (
	"context"

	"github.com/playroomhq/playroom/internal/bots"
	"github.com/playroomhq/playroom/internal/logger"
)

// Reconciliation keeps bot participants in agreement with the config store.
// Everything here runs inside the room loop (or in Start, before the loop
// exists), so it interleaves safely with client traffic. Bot identity is
// keyed by the roster record id throughout; record names are display-only.

// materializeRecord creates a bot participant for a record that has none.
// Idempotent: a record already represented is left untouched.
func (r *Room) materializeRecord(rec bots.Record) bool {
	if r.state.botByRecordID(rec.ID) != nil {
		return false
	}

	sessionID := r.newSessionID()
	for r.state.get(sessionID) != nil {
		sessionID = r.newSessionID()
	}

	r.state.add(&Participant{
		SessionID: sessionID,
		Username:  rec.Name,
		HeroType:  r.randInt(12) + 1,
		Position:  r.randomPosition(),
		Kind:      KindBot,
		Prompt:    rec.Prompt,
		BotID:     rec.ID,
	})
	logger.Infof("[room %s] bot %q (record %d) joined as %s", r.id, rec.Name, rec.ID, sessionID)
	return true
}

func (r *Room) handleReload() {
	if r.records == nil {
		return
	}
	records, err := r.records.List(context.Background())
	if err != nil {
		logger.Errorf("[room %s] bot reload failed: %v", r.id, err)
		return
	}
	changed := false
	for _, rec := range records {
		if r.materializeRecord(rec) {
			changed = true
		}
	}
	if changed {
		r.broadcastRoster()
	}
}

// handleBotUpsert applies an insert or update notification. Updates touch
// username and prompt only; the bot's position never moves. An update for a
// record with no live participant falls back to creation, which also makes
// duplicate insert notifications harmless.
func (r *Room) handleBotUpsert(rec bots.Record) {
	if p := r.state.botByRecordID(rec.ID); p != nil {
		p.Username = rec.Name
		p.Prompt = rec.Prompt
		r.broadcastState()
		return
	}
	if r.materializeRecord(rec) {
		r.broadcastRoster()
	}
}

func (r *Room) handleBotDelete(rec bots.Record) {
	p := r.state.botByRecordID(rec.ID)
	if p == nil {
		logger.Debugf("[room %s] delete for unknown bot record %d; ignored", r.id, rec.ID)
		return
	}
	r.state.remove(p.SessionID)
	logger.Infof("[room %s] bot %q (record %d) removed", r.id, rec.Name, rec.ID)
	r.broadcastRoster()
}
