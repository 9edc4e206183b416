package app

import (
	"context"
	"fmt"

	"github.com/kittclouds/matlog/internal/store"
)

// SaveSession creates or replaces a training session. A missing id is
// generated. Returns the session as stored.
func (s *Service) SaveSession(ctx context.Context, ts *store.TrainingSession) (*store.TrainingSession, error) {
	st, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	if ts != nil && ts.ID == "" {
		ts.ID = store.NewID()
	}
	if err := st.UpsertSession(ctx, ts); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	saved, err := st.GetSession(ctx, ts.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return saved, nil
}

// UpdateSession replaces a session. Same as SaveSession.
func (s *Service) UpdateSession(ctx context.Context, ts *store.TrainingSession) (*store.TrainingSession, error) {
	return s.SaveSession(ctx, ts)
}

// GetSessions returns all sessions, most recent first.
func (s *Service) GetSessions(ctx context.Context) ([]*store.TrainingSession, error) {
	st, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := st.GetSessions(ctx)
	if err != nil {
		s.log.Error("failed to load sessions", "error", err)
		return []*store.TrainingSession{}, nil
	}
	return sessions, nil
}

// GetSession returns one session.
func (s *Service) GetSession(ctx context.Context, id string) (*store.TrainingSession, error) {
	st, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	return st.GetSession(ctx, id)
}

// DeleteSession removes a session with its submissions and technique links.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	st, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if err := st.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
