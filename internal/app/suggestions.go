package app

import (
	"context"
	"fmt"

	"github.com/kittclouds/matlog/internal/recognize"
	"github.com/kittclouds/matlog/internal/store"
)

const (
	defaultSuggestionLimit = 10
	noteKeywordLimit       = 5
)

func suggestionLimit(limit int) int {
	if limit <= 0 {
		return defaultSuggestionLimit
	}
	return limit
}

// ListTags returns every tag, most used first.
func (s *Service) ListTags(ctx context.Context) ([]*store.Tag, error) {
	st, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := st.ListTags(ctx)
	if err != nil {
		s.log.Error("failed to load tags", "error", err)
		return []*store.Tag{}, nil
	}
	return tags, nil
}

// PopularTags returns the most used tags.
func (s *Service) PopularTags(ctx context.Context, limit int) ([]*store.Tag, error) {
	st, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := st.PopularTags(ctx, suggestionLimit(limit))
	if err != nil {
		s.log.Error("failed to load popular tags", "error", err)
		return []*store.Tag{}, nil
	}
	return tags, nil
}

// SearchTags returns tags containing query.
func (s *Service) SearchTags(ctx context.Context, query string, limit int) ([]*store.Tag, error) {
	st, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := st.SearchTags(ctx, query, suggestionLimit(limit))
	if err != nil {
		s.log.Error("failed to search tags", "query", query, "error", err)
		return []*store.Tag{}, nil
	}
	return tags, nil
}

// CreateCustomTag adds a user-defined tag.
func (s *Service) CreateCustomTag(ctx context.Context, name string, category store.TagCategory) (*store.Tag, error) {
	st, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	tag, err := st.CreateCustomTag(ctx, name, category)
	if err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}
	return tag, nil
}

// ListLocations returns known locations, most used then most recent first.
func (s *Service) ListLocations(ctx context.Context) ([]*store.Location, error) {
	st, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	locations, err := st.ListLocations(ctx)
	if err != nil {
		s.log.Error("failed to load locations", "error", err)
		return []*store.Location{}, nil
	}
	return locations, nil
}

// SearchLocations returns locations starting with prefix.
func (s *Service) SearchLocations(ctx context.Context, prefix string, limit int) ([]*store.Location, error) {
	st, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	locations, err := st.SearchLocations(ctx, prefix, suggestionLimit(limit))
	if err != nil {
		s.log.Error("failed to search locations", "prefix", prefix, "error", err)
		return []*store.Location{}, nil
	}
	return locations, nil
}

// NoteSuggestions is what notes analysis offers the editor.
type NoteSuggestions struct {
	Techniques []*store.Technique  `json:"techniques"`
	Mentions   []recognize.Match   `json:"mentions"`
	Keywords   []recognize.Keyword `json:"keywords"`
}

// SuggestFromNotes finds known techniques mentioned in notes and proposes
// keywords that are not yet tags.
func (s *Service) SuggestFromNotes(ctx context.Context, notes string) (*NoteSuggestions, error) {
	out := &NoteSuggestions{
		Techniques: []*store.Technique{},
		Mentions:   []recognize.Match{},
		Keywords:   []recognize.Keyword{},
	}

	techniques, err := s.GetTechniques(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := s.ListTags(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]recognize.Entry, 0, len(techniques))
	byID := make(map[string]*store.Technique, len(techniques))
	for _, t := range techniques {
		entries = append(entries, recognize.Entry{ID: t.ID, Name: t.Name})
		byID[t.ID] = t
	}
	dict, err := recognize.Compile(entries)
	if err != nil {
		s.log.Warn("failed to compile technique dictionary", "error", err)
		dict, _ = recognize.Compile(nil)
	}

	mentions := dict.Scan(notes)
	seen := make(map[string]bool)
	for _, m := range mentions {
		for _, id := range m.IDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			out.Techniques = append(out.Techniques, byID[id])
		}
	}
	out.Mentions = append(out.Mentions, mentions...)

	extractor := recognize.NewKeywordExtractor()
	for _, t := range tags {
		extractor.Ignore(t.Name)
	}
	out.Keywords = extractor.Extract(notes, mentions, noteKeywordLimit)
	return out, nil
}
