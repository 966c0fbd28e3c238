package bots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Store persists bot records in SQLite and publishes a change-feed event
// after every successful write.
type Store struct {
	db   *sql.DB
	feed *Feed
}

// NewStore creates a store over an opened database.
func NewStore(db *sql.DB, feed *Feed) *Store {
	return &Store{db: db, feed: feed}
}

// Feed exposes the change feed for subscribers.
func (s *Store) Feed() *Feed {
	return s.feed
}

// List returns every bot record, oldest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner_id, name, prompt FROM bots ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Name, &r.Prompt); err != nil {
			return nil, fmt.Errorf("scan bot: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListByOwner returns the bot records created by one user, oldest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner_id, name, prompt FROM bots WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list bots by owner: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Name, &r.Prompt); err != nil {
			return nil, fmt.Errorf("scan bot: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Get returns one record by id.
func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	var r Record
	err := s.db.QueryRowContext(ctx, `SELECT id, owner_id, name, prompt FROM bots WHERE id = ?`, id).
		Scan(&r.ID, &r.OwnerID, &r.Name, &r.Prompt)
	if err != nil {
		return Record{}, fmt.Errorf("get bot %d: %w", id, err)
	}
	return r, nil
}

// Create inserts a new record and publishes an insert event.
func (s *Store) Create(ctx context.Context, ownerID, name, prompt string) (Record, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO bots (owner_id, name, prompt) VALUES (?, ?, ?)`, ownerID, name, prompt)
	if err != nil {
		return Record{}, fmt.Errorf("create bot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("create bot id: %w", err)
	}

	rec := Record{ID: id, OwnerID: ownerID, Name: name, Prompt: prompt}
	if s.feed != nil {
		s.feed.Publish(Event{Kind: EventInsert, Record: rec})
	}
	return rec, nil
}

// UpdatePrompt overwrites a record's prompt and publishes an update event
// carrying the full post-write record.
func (s *Store) UpdatePrompt(ctx context.Context, id int64, prompt string) (Record, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bots SET prompt = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, prompt, id)
	if err != nil {
		return Record{}, fmt.Errorf("update bot prompt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Record{}, fmt.Errorf("update bot prompt: %w", err)
	}
	if affected == 0 {
		return Record{}, sql.ErrNoRows
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if s.feed != nil {
		s.feed.Publish(Event{Kind: EventUpdate, Record: rec})
	}
	return rec, nil
}

// Delete removes a record and publishes a delete event. Deleting a missing
// record is not an error; no event is published.
func (s *Store) Delete(ctx context.Context, id int64) error {
	rec, err := s.Get(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM bots WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete bot %d: %w", id, err)
	}
	if s.feed != nil {
		s.feed.Publish(Event{Kind: EventDelete, Record: rec})
	}
	return nil
}
