// Package bots holds the bot roster: persisted records describing the
// server-driven participants that rooms materialize, plus a change feed that
// notifies live rooms about edits.
package bots

// Record is one row of the bot roster.
type Record struct {
	ID      int64  `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"bot_name"`
	Prompt  string `json:"bot_prompt"`
}
