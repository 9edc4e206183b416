package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/kittclouds/matlog/internal/legacy"
	"github.com/kittclouds/matlog/internal/profile"
	"github.com/kittclouds/matlog/internal/store"
)

// GetProfile returns the stored profile or the default one.
func (s *Service) GetProfile(ctx context.Context) (*profile.Profile, error) {
	p, err := profile.Load(ctx, s.kv)
	if err != nil {
		s.log.Warn("failed to load profile, using default", "error", err)
		return profile.Default(), nil
	}
	return p, nil
}

// SaveProfile validates and stores the profile.
func (s *Service) SaveProfile(ctx context.Context, p *profile.Profile) error {
	if err := profile.Save(ctx, s.kv, p); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// Counts returns row counts for the support screen.
func (s *Service) Counts(ctx context.Context) (*store.Counts, error) {
	st, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	return st.Counts(ctx)
}

// ClearLegacyData removes the imported legacy keys.
func (s *Service) ClearLegacyData(ctx context.Context) error {
	importer, err := s.legacyImporter(ctx)
	if err != nil {
		return err
	}
	if err := importer.ClearLegacyData(ctx); err != nil {
		return fmt.Errorf("failed to clear legacy data: %w", err)
	}
	return nil
}

// ResetMigration clears the import flag. Legacy records still present are
// imported again on the next initialization.
func (s *Service) ResetMigration(ctx context.Context) error {
	importer, err := s.legacyImporter(ctx)
	if err != nil {
		return err
	}
	if err := importer.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset migration: %w", err)
	}
	return nil
}

func (s *Service) legacyImporter(ctx context.Context) (*legacy.Importer, error) {
	if _, err := s.ready(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.importer == nil {
		return nil, errors.New("storage is closed")
	}
	return s.importer, nil
}
