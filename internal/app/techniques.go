package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/kittclouds/matlog/internal/store"
)

// SaveTechnique creates or replaces a technique. A missing id is generated.
// Returns the technique as stored.
func (s *Service) SaveTechnique(ctx context.Context, t *store.Technique) (*store.Technique, error) {
	st, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	if t != nil && t.ID == "" {
		t.ID = store.NewID()
	}
	if err := st.UpsertTechnique(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to save technique: %w", err)
	}
	saved, err := st.GetTechnique(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to save technique: %w", err)
	}
	return saved, nil
}

// UpdateTechnique replaces a technique. Same as SaveTechnique.
func (s *Service) UpdateTechnique(ctx context.Context, t *store.Technique) (*store.Technique, error) {
	return s.SaveTechnique(ctx, t)
}

// GetTechniques returns all techniques, newest first.
func (s *Service) GetTechniques(ctx context.Context) ([]*store.Technique, error) {
	st, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	techniques, err := st.GetTechniques(ctx)
	if err != nil {
		s.log.Error("failed to load techniques", "error", err)
		return []*store.Technique{}, nil
	}
	return techniques, nil
}

// GetTechnique returns one technique.
func (s *Service) GetTechnique(ctx context.Context, id string) (*store.Technique, error) {
	st, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	return st.GetTechnique(ctx, id)
}

// GetTechniquesBySession returns techniques tied to a session.
func (s *Service) GetTechniquesBySession(ctx context.Context, sessionID string) ([]*store.Technique, error) {
	st, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	techniques, err := st.GetTechniquesBySession(ctx, sessionID)
	if err != nil {
		s.log.Error("failed to load session techniques", "session", sessionID, "error", err)
		return []*store.Technique{}, nil
	}
	return techniques, nil
}

// GetRecentTechniques returns at most limit techniques, newest first.
func (s *Service) GetRecentTechniques(ctx context.Context, limit int) ([]*store.Technique, error) {
	st, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	techniques, err := st.GetRecentTechniques(ctx, limit)
	if err != nil {
		s.log.Error("failed to load recent techniques", "error", err)
		return []*store.Technique{}, nil
	}
	return techniques, nil
}

// RelatedTechniques returns techniques similar to id. A non-positive limit
// uses the configured default.
func (s *Service) RelatedTechniques(ctx context.Context, id string, limit int) ([]*store.Technique, error) {
	st, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.RelatedLimit
	}
	techniques, err := st.RelatedTechniques(ctx, id, limit)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Error("failed to load related techniques", "technique", id, "error", err)
		}
		return []*store.Technique{}, nil
	}
	return techniques, nil
}

// DeleteTechnique removes a technique and sweeps custom tags left unused.
func (s *Service) DeleteTechnique(ctx context.Context, id string) error {
	st, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if _, err := st.DeleteTechnique(ctx, id); err != nil {
		return fmt.Errorf("failed to delete technique: %w", err)
	}
	return nil
}
