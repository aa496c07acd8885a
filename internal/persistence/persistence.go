// Package persistence is the CRUD gateway over patches, performances, and
// app-state described in spec.md §4.9: gzip+JSON documents on disk, schema
// version checked on every read, and a 400ms debounced app-state write path.
package persistence

import (
	"compress/gzip"
	stdjson "encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/schollz/orchestron/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CurrentSchemaVersion is stamped on every document written by this gateway.
const CurrentSchemaVersion = 1

// appStateDebounce is the 400ms coalescing window from spec.md §4.9.
const appStateDebounce = 400 * time.Millisecond

// ErrUnsupportedSchema is returned when a document's schema_version is newer
// than CurrentSchemaVersion.
type ErrUnsupportedSchema struct {
	Found int
}

func (e *ErrUnsupportedSchema) Error() string {
	return fmt.Sprintf("persistence: document schema version %d is unsupported (gateway supports up to %d)", e.Found, CurrentSchemaVersion)
}

type envelope struct {
	SchemaVersion int              `json:"schema_version"`
	Payload       stdjson.RawMessage `json:"payload"`
}

// Gateway is the full CRUD surface over one base directory on disk. Every
// mutation rewrites the full document; there is no partial update.
type Gateway struct {
	baseDir string
	noDebounce bool

	mu           sync.Mutex
	appStateTimer *time.Timer
	pendingState []byte
}

func NewGateway(baseDir string) (*Gateway, error) {
	for _, sub := range []string{"patches", "performances"} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0755); err != nil {
			return nil, fmt.Errorf("persistence: failed to create %s directory: %w", sub, err)
		}
	}
	return &Gateway{baseDir: baseDir}, nil
}

// DisableAppStateDebounce makes SaveAppStateDebounced write through
// immediately instead of coalescing over the 400ms window, for the
// `--no-reload` CLI flag.
func (g *Gateway) DisableAppStateDebounce() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.noDebounce = true
}

func (g *Gateway) patchPath(id string) string       { return filepath.Join(g.baseDir, "patches", id+".json.gz") }
func (g *Gateway) performancePath(id string) string { return filepath.Join(g.baseDir, "performances", id+".json.gz") }
func (g *Gateway) appStatePath() string             { return filepath.Join(g.baseDir, "app-state.json.gz") }

func writeDocument(path string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("persistence: marshal failed: %w", err)
	}
	env := envelope{SchemaVersion: CurrentSchemaVersion, Payload: raw}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("persistence: envelope marshal failed: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("persistence: create failed: %w", err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write(envBytes); err != nil {
		gz.Close()
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("persistence: write failed: %w", err)
	}
	if err := gz.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("persistence: gzip close failed: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("persistence: close failed: %w", err)
	}
	return os.Rename(tmp, path)
}

func readDocument(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("persistence: gzip open failed: %w", err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return fmt.Errorf("persistence: read failed: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("persistence: envelope decode failed: %w", err)
	}
	if env.SchemaVersion > CurrentSchemaVersion {
		return &ErrUnsupportedSchema{Found: env.SchemaVersion}
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return fmt.Errorf("persistence: payload decode failed: %w", err)
	}
	return nil
}

func listIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json.gz") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json.gz"))
	}
	sort.Strings(ids)
	return ids, nil
}

// SavePatch rewrites the patch document in full.
func (g *Gateway) SavePatch(id string, patch types.Patch) error {
	return writeDocument(g.patchPath(id), patch)
}

// LoadPatch reads and schema-checks a patch document.
func (g *Gateway) LoadPatch(id string) (types.Patch, error) {
	var patch types.Patch
	err := readDocument(g.patchPath(id), &patch)
	return patch, err
}

func (g *Gateway) DeletePatch(id string) error {
	if err := os.Remove(g.patchPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (g *Gateway) ListPatches() ([]string, error) {
	return listIDs(filepath.Join(g.baseDir, "patches"))
}

// SavePerformance rewrites the performance document in full.
func (g *Gateway) SavePerformance(id string, perf types.Performance) error {
	return writeDocument(g.performancePath(id), perf)
}

func (g *Gateway) LoadPerformance(id string) (types.Performance, error) {
	var perf types.Performance
	err := readDocument(g.performancePath(id), &perf)
	return perf, err
}

func (g *Gateway) DeletePerformance(id string) error {
	if err := os.Remove(g.performancePath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (g *Gateway) ListPerformances() ([]string, error) {
	return listIDs(filepath.Join(g.baseDir, "performances"))
}

// SaveAppStateDebounced queues blob for the app-state file, coalescing with
// any pending write: only the most recent snapshot within the 400ms window
// is ever persisted, per spec.md §4.9.
func (g *Gateway) SaveAppStateDebounced(blob []byte) {
	g.mu.Lock()
	if g.noDebounce {
		g.mu.Unlock()
		writeDocument(g.appStatePath(), stdjson.RawMessage(blob))
		return
	}
	defer g.mu.Unlock()

	g.pendingState = blob
	if g.appStateTimer != nil {
		g.appStateTimer.Stop()
	}
	g.appStateTimer = time.AfterFunc(appStateDebounce, func() {
		g.mu.Lock()
		pending := g.pendingState
		g.mu.Unlock()
		if pending == nil {
			return
		}
		writeDocument(g.appStatePath(), stdjson.RawMessage(pending))
	})
}

// LoadAppState reads the raw app-state payload, schema-checked.
func (g *Gateway) LoadAppState() ([]byte, error) {
	var raw stdjson.RawMessage
	err := readDocument(g.appStatePath(), &raw)
	return raw, err
}
