//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"syscall/js"

	"github.com/kittclouds/matlog/internal/profile"
	"github.com/kittclouds/matlog/internal/store"
)

// =============================================================================
// Lifecycle
// =============================================================================

// initialize opens storage, applies migrations and imports legacy data.
// Safe to call repeatedly; every other call initializes on demand.
func initialize(this js.Value, args []js.Value) interface{} {
	return async("initialize", func(ctx context.Context) (interface{}, error) {
		if err := svc.Init(ctx); err != nil {
			return nil, err
		}
		return "storage ready", nil
	})
}

func state(this js.Value, args []js.Value) interface{} {
	return svc.State().String()
}

// =============================================================================
// Techniques
// =============================================================================

// saveTechnique inserts or replaces a technique.
// Args: [techniqueJSON string]
// Returns: Promise<Technique JSON>
func saveTechnique(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("saveTechnique requires 1 arg: techniqueJSON")
	}
	var t store.Technique
	if err := json.Unmarshal([]byte(args[0].String()), &t); err != nil {
		return errorResult("invalid technique json: " + err.Error())
	}
	return async("saveTechnique", func(ctx context.Context) (interface{}, error) {
		return svc.SaveTechnique(ctx, &t)
	})
}

func updateTechnique(this js.Value, args []js.Value) interface{} {
	return saveTechnique(this, args)
}

func getTechniques(this js.Value, args []js.Value) interface{} {
	return async("getTechniques", func(ctx context.Context) (interface{}, error) {
		return svc.GetTechniques(ctx)
	})
}

// deleteTechnique removes a technique.
// Args: [id string]
func deleteTechnique(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("deleteTechnique requires 1 arg: id")
	}
	id := args[0].String()
	return async("deleteTechnique", func(ctx context.Context) (interface{}, error) {
		if err := svc.DeleteTechnique(ctx, id); err != nil {
			return nil, err
		}
		return "deleted " + id, nil
	})
}

// getTechniquesBySession lists techniques tied to a session.
// Args: [sessionId string]
func getTechniquesBySession(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("getTechniquesBySession requires 1 arg: sessionId")
	}
	sessionID := args[0].String()
	return async("getTechniquesBySession", func(ctx context.Context) (interface{}, error) {
		return svc.GetTechniquesBySession(ctx, sessionID)
	})
}

// getRecentTechniques lists the newest techniques.
// Args: [limit? number] (default 10)
func getRecentTechniques(this js.Value, args []js.Value) interface{} {
	limit := optionalInt(args, 0, 10)
	return async("getRecentTechniques", func(ctx context.Context) (interface{}, error) {
		return svc.GetRecentTechniques(ctx, limit)
	})
}

// getRelatedTechniques lists techniques similar to one technique.
// Args: [id string, limit? number]
func getRelatedTechniques(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("getRelatedTechniques requires 1 arg: id")
	}
	id := args[0].String()
	limit := optionalInt(args, 1, 0)
	return async("getRelatedTechniques", func(ctx context.Context) (interface{}, error) {
		return svc.RelatedTechniques(ctx, id, limit)
	})
}

// =============================================================================
// Sessions
// =============================================================================

// saveSession inserts or replaces a training session.
// Args: [sessionJSON string]
// Returns: Promise<TrainingSession JSON>
func saveSession(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("saveSession requires 1 arg: sessionJSON")
	}
	var ts store.TrainingSession
	if err := json.Unmarshal([]byte(args[0].String()), &ts); err != nil {
		return errorResult("invalid session json: " + err.Error())
	}
	return async("saveSession", func(ctx context.Context) (interface{}, error) {
		return svc.SaveSession(ctx, &ts)
	})
}

func updateSession(this js.Value, args []js.Value) interface{} {
	return saveSession(this, args)
}

func getSessions(this js.Value, args []js.Value) interface{} {
	return async("getSessions", func(ctx context.Context) (interface{}, error) {
		return svc.GetSessions(ctx)
	})
}

// deleteSession removes a session.
// Args: [id string]
func deleteSession(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("deleteSession requires 1 arg: id")
	}
	id := args[0].String()
	return async("deleteSession", func(ctx context.Context) (interface{}, error) {
		if err := svc.DeleteSession(ctx, id); err != nil {
			return nil, err
		}
		return "deleted " + id, nil
	})
}

// =============================================================================
// Tags, locations and notes
// =============================================================================

func getTags(this js.Value, args []js.Value) interface{} {
	return async("getTags", func(ctx context.Context) (interface{}, error) {
		return svc.ListTags(ctx)
	})
}

// getPopularTags Args: [limit? number]
func getPopularTags(this js.Value, args []js.Value) interface{} {
	limit := optionalInt(args, 0, 0)
	return async("getPopularTags", func(ctx context.Context) (interface{}, error) {
		return svc.PopularTags(ctx, limit)
	})
}

// searchTags Args: [query string, limit? number]
func searchTags(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("searchTags requires 1 arg: query")
	}
	query := args[0].String()
	limit := optionalInt(args, 1, 0)
	return async("searchTags", func(ctx context.Context) (interface{}, error) {
		return svc.SearchTags(ctx, query, limit)
	})
}

// createCustomTag Args: [name string, category? string]
func createCustomTag(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("createCustomTag requires 1 arg: name")
	}
	name := args[0].String()
	var category store.TagCategory
	if len(args) > 1 && !args[1].IsUndefined() && !args[1].IsNull() {
		category = store.TagCategory(args[1].String())
	}
	return async("createCustomTag", func(ctx context.Context) (interface{}, error) {
		return svc.CreateCustomTag(ctx, name, category)
	})
}

func getLocations(this js.Value, args []js.Value) interface{} {
	return async("getLocations", func(ctx context.Context) (interface{}, error) {
		return svc.ListLocations(ctx)
	})
}

// searchLocations Args: [prefix string, limit? number]
func searchLocations(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("searchLocations requires 1 arg: prefix")
	}
	prefix := args[0].String()
	limit := optionalInt(args, 1, 0)
	return async("searchLocations", func(ctx context.Context) (interface{}, error) {
		return svc.SearchLocations(ctx, prefix, limit)
	})
}

// suggestFromNotes Args: [notes string]
func suggestFromNotes(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("suggestFromNotes requires 1 arg: notes")
	}
	notes := args[0].String()
	return async("suggestFromNotes", func(ctx context.Context) (interface{}, error) {
		return svc.SuggestFromNotes(ctx, notes)
	})
}

// =============================================================================
// Profile and support
// =============================================================================

func getProfile(this js.Value, args []js.Value) interface{} {
	return async("getProfile", func(ctx context.Context) (interface{}, error) {
		return svc.GetProfile(ctx)
	})
}

// saveProfile Args: [profileJSON string]
func saveProfile(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("saveProfile requires 1 arg: profileJSON")
	}
	var p profile.Profile
	if err := json.Unmarshal([]byte(args[0].String()), &p); err != nil {
		return errorResult("invalid profile json: " + err.Error())
	}
	return async("saveProfile", func(ctx context.Context) (interface{}, error) {
		if err := svc.SaveProfile(ctx, &p); err != nil {
			return nil, err
		}
		return "profile saved", nil
	})
}

func counts(this js.Value, args []js.Value) interface{} {
	return async("counts", func(ctx context.Context) (interface{}, error) {
		return svc.Counts(ctx)
	})
}

func clearLegacyData(this js.Value, args []js.Value) interface{} {
	return async("clearLegacyData", func(ctx context.Context) (interface{}, error) {
		if err := svc.ClearLegacyData(ctx); err != nil {
			return nil, err
		}
		return "legacy data cleared", nil
	})
}

func resetMigration(this js.Value, args []js.Value) interface{} {
	return async("resetMigration", func(ctx context.Context) (interface{}, error) {
		if err := svc.ResetMigration(ctx); err != nil {
			return nil, err
		}
		return "migration reset", nil
	})
}
