// Package legacy imports records written by the flat key-value storage of
// earlier releases into the relational store.
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kittclouds/matlog/internal/kvstore"
	"github.com/kittclouds/matlog/internal/logger"
	"github.com/kittclouds/matlog/internal/store"
)

// Legacy storage keys.
const (
	KeyTechniques = "@matlog/techniques"
	KeySessions   = "@matlog/sessions"
	KeyComplete   = "@matlog/migration_complete"
)

// Result summarizes one import pass.
type Result struct {
	Skipped            bool `json:"skipped"`
	TechniquesImported int  `json:"techniquesImported"`
	TechniquesFailed   int  `json:"techniquesFailed"`
	SessionsImported   int  `json:"sessionsImported"`
	SessionsFailed     int  `json:"sessionsFailed"`
}

// Importer moves legacy records into a store exactly once per install.
type Importer struct {
	kv    kvstore.Store
	store store.Storer
	log   *logger.Logger
}

// NewImporter creates an importer reading from kv and writing to st.
func NewImporter(kv kvstore.Store, st store.Storer, log *logger.Logger) *Importer {
	if log == nil {
		log = logger.Nop()
	}
	return &Importer{kv: kv, store: st, log: log}
}

// Completed reports whether the import flag is set.
func (im *Importer) Completed(ctx context.Context) (bool, error) {
	v, ok, err := im.kv.Get(ctx, KeyComplete)
	if err != nil {
		return false, err
	}
	return ok && v == "true", nil
}

// Run imports legacy techniques then sessions through the regular write
// path. Records that fail are logged and skipped; the completion flag is set
// once every record has been attempted. Returns immediately if the flag is
// already set.
func (im *Importer) Run(ctx context.Context) (*Result, error) {
	done, err := im.Completed(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration flag: %w", err)
	}
	if done {
		return &Result{Skipped: true}, nil
	}

	if err := im.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	res := &Result{}
	links := im.importTechniques(ctx, res)
	im.importSessions(ctx, res)

	// Sessions did not exist yet when their techniques were written.
	for techniqueID, sessionID := range links {
		if err := im.store.LinkTechniqueSession(ctx, techniqueID, sessionID); err != nil {
			im.log.Warn("failed to relink technique to session",
				"technique", techniqueID, "session", sessionID, "error", err)
		}
	}

	if err := im.kv.Set(ctx, KeyComplete, "true"); err != nil {
		return nil, fmt.Errorf("failed to set migration flag: %w", err)
	}
	im.log.Info("legacy import complete",
		"techniques", res.TechniquesImported,
		"techniquesFailed", res.TechniquesFailed,
		"sessions", res.SessionsImported,
		"sessionsFailed", res.SessionsFailed,
	)
	return res, nil
}

// importTechniques returns technique to session references to restore after
// sessions are imported.
func (im *Importer) importTechniques(ctx context.Context, res *Result) map[string]string {
	links := make(map[string]string)
	items := im.read(ctx, KeyTechniques)
	for i, raw := range items {
		var rec techniqueRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			im.log.Warn("skipping malformed legacy technique", "index", i, "error", err)
			res.TechniquesFailed++
			continue
		}
		t := rec.toTechnique()
		if err := im.store.UpsertTechnique(ctx, t); err != nil {
			im.log.Warn("failed to import technique", "id", rec.ID, "error", err)
			res.TechniquesFailed++
			continue
		}
		if rec.SessionID != "" {
			links[t.ID] = rec.SessionID
		}
		res.TechniquesImported++
	}
	return links
}

func (im *Importer) importSessions(ctx context.Context, res *Result) {
	items := im.read(ctx, KeySessions)
	for i, raw := range items {
		var rec sessionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			im.log.Warn("skipping malformed legacy session", "index", i, "error", err)
			res.SessionsFailed++
			continue
		}
		if err := im.store.UpsertSession(ctx, rec.toSession()); err != nil {
			im.log.Warn("failed to import session", "id", rec.ID, "error", err)
			res.SessionsFailed++
			continue
		}
		res.SessionsImported++
	}
}

// read returns the elements stored under key. An absent key or an unreadable
// blob yields no records.
func (im *Importer) read(ctx context.Context, key string) []json.RawMessage {
	blob, ok, err := im.kv.Get(ctx, key)
	if err != nil {
		im.log.Warn("failed to read legacy key", "key", key, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	items, err := decodeArray(blob)
	if err != nil {
		im.log.Warn("legacy key is not a JSON array", "key", key, "error", err)
		return nil
	}
	return items
}

// ClearLegacyData removes the legacy record keys. It refuses to run before
// the import has completed.
func (im *Importer) ClearLegacyData(ctx context.Context) error {
	done, err := im.Completed(ctx)
	if err != nil {
		return err
	}
	if !done {
		return ErrNotMigrated
	}
	return im.kv.Remove(ctx, KeyTechniques, KeySessions)
}

// Reset clears the completion flag so the next Run imports again.
func (im *Importer) Reset(ctx context.Context) error {
	return im.kv.Remove(ctx, KeyComplete)
}

// ErrNotMigrated is returned when legacy data is cleared before import.
var ErrNotMigrated = errors.New("legacy data has not been migrated")
