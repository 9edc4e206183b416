//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/kittclouds/matlog/internal/app"
	"github.com/kittclouds/matlog/internal/config"
	"github.com/kittclouds/matlog/internal/kvstore"
	"github.com/kittclouds/matlog/internal/logger"
)

// Version info
const Version = "1.0.0"

// Global state
var svc *app.Service

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("[Matlog] FATAL: Failed to load config:", err.Error())
		return
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Println("[Matlog] Logger unavailable, continuing silently:", err.Error())
		log = logger.Nop()
	}

	var kv kvstore.Store
	sqliteKV, err := kvstore.OpenSQLite(cfg.KVPath)
	if err != nil {
		log.Warn("key-value store unavailable, falling back to memory", "error", err)
		kv = kvstore.NewMemory()
	} else {
		kv = sqliteKV
	}

	svc = app.New(cfg, kv, log)

	fmt.Println("[Matlog] WASM Ready v" + Version)

	// Register exports
	js.Global().Set("Matlog", js.ValueOf(map[string]interface{}{
		"version":    js.FuncOf(getVersion),
		"initialize": js.FuncOf(initialize),
		"state":      js.FuncOf(state),
		// Techniques
		"saveTechnique":          js.FuncOf(saveTechnique),
		"updateTechnique":        js.FuncOf(updateTechnique),
		"getTechniques":          js.FuncOf(getTechniques),
		"deleteTechnique":        js.FuncOf(deleteTechnique),
		"getTechniquesBySession": js.FuncOf(getTechniquesBySession),
		"getRecentTechniques":    js.FuncOf(getRecentTechniques),
		"getRelatedTechniques":   js.FuncOf(getRelatedTechniques),
		// Sessions
		"saveSession":   js.FuncOf(saveSession),
		"updateSession": js.FuncOf(updateSession),
		"getSessions":   js.FuncOf(getSessions),
		"deleteSession": js.FuncOf(deleteSession),
		// Suggestions
		"getTags":          js.FuncOf(getTags),
		"getPopularTags":   js.FuncOf(getPopularTags),
		"searchTags":       js.FuncOf(searchTags),
		"createCustomTag":  js.FuncOf(createCustomTag),
		"getLocations":     js.FuncOf(getLocations),
		"searchLocations":  js.FuncOf(searchLocations),
		"suggestFromNotes": js.FuncOf(suggestFromNotes),
		// Profile and support
		"getProfile":      js.FuncOf(getProfile),
		"saveProfile":     js.FuncOf(saveProfile),
		"counts":          js.FuncOf(counts),
		"clearLegacyData": js.FuncOf(clearLegacyData),
		"resetMigration":  js.FuncOf(resetMigration),
	}))

	select {}
}

func getVersion(this js.Value, args []js.Value) interface{} {
	return Version
}

// Helper: Create error result
func errorResult(msg string) interface{} {
	result := map[string]interface{}{
		"error": msg,
	}
	jsonBytes, _ := json.Marshal(result)
	return string(jsonBytes)
}

// Helper: Create success result
func successResult(msg string) interface{} {
	result := map[string]interface{}{
		"success": msg,
	}
	jsonBytes, _ := json.Marshal(result)
	return string(jsonBytes)
}

// makePromise creates a JS Promise and returns it along with resolve/reject functions.
func makePromise() (promise js.Value, resolve js.Value, reject js.Value) {
	var resolveFn, rejectFn js.Value
	handler := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		resolveFn = args[0]
		rejectFn = args[1]
		return nil
	})
	defer handler.Release()

	promise = js.Global().Get("Promise").New(handler)
	return promise, resolveFn, rejectFn
}

// async runs fn off the JS event loop. The promise resolves with the JSON
// encoding of the result, or rejects with an Error carrying the message.
func async(name string, fn func(ctx context.Context) (interface{}, error)) interface{} {
	promise, resolve, reject := makePromise()

	go func() {
		result, err := fn(context.Background())
		if err != nil {
			reject.Invoke(js.Global().Get("Error").New(fmt.Sprintf("%s: %v", name, err)))
			return
		}
		if msg, ok := result.(string); ok {
			resolve.Invoke(successResult(msg))
			return
		}
		jsonBytes, err := json.Marshal(result)
		if err != nil {
			reject.Invoke(js.Global().Get("Error").New(fmt.Sprintf("%s: %v", name, err)))
			return
		}
		resolve.Invoke(string(jsonBytes))
	}()

	return promise
}

// optionalInt reads args[i] as an integer, returning def when absent.
func optionalInt(args []js.Value, i, def int) int {
	if len(args) <= i || args[i].IsUndefined() || args[i].IsNull() {
		return def
	}
	return args[i].Int()
}
