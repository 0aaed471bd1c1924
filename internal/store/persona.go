package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Persona is how the assistant presents itself to one user.
type Persona struct {
	Name string
	Role string
	Tone string
}

// PersonaStore persists per-user personas.
type PersonaStore struct {
	db *sql.DB
}

// Get returns the user's persona, or nil if none has been set.
func (s *PersonaStore) Get(ctx context.Context, userID string) (*Persona, error) {
	var p Persona
	err := s.db.QueryRowContext(ctx,
		`SELECT name, role, tone FROM personas WHERE user_id = ?`, userID,
	).Scan(&p.Name, &p.Role, &p.Tone)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get persona: %w", err)
	}
	return &p, nil
}

// Save upserts the user's persona.
func (s *PersonaStore) Save(ctx context.Context, userID string, p Persona) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO personas (user_id, name, role, tone) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE
		 SET name = excluded.name, role = excluded.role, tone = excluded.tone`,
		userID, p.Name, p.Role, p.Tone,
	)
	if err != nil {
		return fmt.Errorf("save persona: %w", err)
	}
	return nil
}

// Delete removes the user's persona. Missing rows are not an error.
func (s *PersonaStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM personas WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete persona: %w", err)
	}
	return nil
}
