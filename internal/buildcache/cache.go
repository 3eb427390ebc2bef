// Package buildcache keeps emitted artifacts on disk keyed by the digest of
// everything that influences them, so an unchanged unit is not emitted
// again.
package buildcache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"cilforge/internal/diag"
)

// Current schema version - increment when Payload format changes
const schemaVersion uint16 = 1

// Digest is a SHA-256 content hash.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether d was never computed.
func (d Digest) IsZero() bool { return d == Digest{} }

// Key combines the input digest with every setting that changes the output:
// H(content || len(part) || part ...).
func Key(content [32]byte, parts ...string) Digest {
	h := sha256.New()
	_, _ = h.Write(content[:])
	for _, p := range parts {
		_, _ = h.Write(binary.BigEndian.AppendUint32(nil, uint32(len(p))))
		_, _ = h.Write([]byte(p))
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// Cache хранит артефакты сборки по Key на диске.
// Thread-safe for concurrent access.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Diagnostic is the cached form of a diagnostic reported while the artifact
// was produced; a cache hit replays them.
type Diagnostic struct {
	Severity  uint8
	Code      uint16
	Message   string
	Unit      string
	Method    string
	Statement int
}

// Payload is one cached artifact.
type Payload struct {
	// Schema version for safe invalidation when format changes
	Schema uint16

	Unit    string
	Backend string
	// Image holds the PE bytes, Listing the IL text; one of them is set.
	Image   []byte
	Listing string

	Diagnostics []Diagnostic
	Created     int64 // unix seconds
}

// Open uses dir as the cache root.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// OpenDefault initializes the cache at the standard per-user location.
func OpenDefault(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return Open(filepath.Join(base, app))
}

// Dir is the cache root.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *Cache) pathFor(key Digest) string {
	// Для удобства очистки: подкаталог "artifacts".
	return filepath.Join(c.dir, "artifacts", key.String()+".mp")
}

// Put serializes and writes a payload.
func (c *Cache) Put(key Digest, payload *Payload) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	payload.Schema = schemaVersion
	if payload.Created == 0 {
		payload.Created = time.Now().Unix()
	}
	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err = msgpack.NewEncoder(f).Encode(payload); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(f.Name(), p)
}

// Get reads a payload. Entries written by another schema are misses.
func (c *Cache) Get(key Digest) (*Payload, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var out Payload
	if err := msgpack.NewDecoder(f).Decode(&out); err != nil {
		return nil, false, err
	}
	if out.Schema != schemaVersion {
		return nil, false, nil
	}
	return &out, true, nil
}

// DropAll invalidates the cache.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// тривиально: переименуем каталог и удалим
	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}

// Record converts diagnostics for storage.
func Record(items []diag.Diagnostic) []Diagnostic {
	out := make([]Diagnostic, len(items))
	for i, d := range items {
		out[i] = Diagnostic{
			Severity:  uint8(d.Severity),
			Code:      uint16(d.Code),
			Message:   d.Message,
			Unit:      d.Primary.Unit,
			Method:    d.Primary.Method,
			Statement: d.Primary.Statement,
		}
	}
	return out
}

// Replay reports stored diagnostics again.
func Replay(r diag.Reporter, items []Diagnostic) {
	if r == nil {
		return
	}
	for _, d := range items {
		loc := diag.Location{Unit: d.Unit, Method: d.Method, Statement: d.Statement}
		r.Report(diag.New(diag.Severity(d.Severity), diag.Code(d.Code), loc, d.Message))
	}
}
