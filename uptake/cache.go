package uptake

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// CacheRecorder receives cache hit and miss notifications.
type CacheRecorder interface {
	RecordCacheHit(ctx context.Context)
	RecordCacheMiss(ctx context.Context)
}

// CachedModel is a Model decorator that memoizes head logits in memory and
// optionally on disk. Inference is deterministic, so a cached vector is the
// vector the model would have produced.
type CachedModel struct {
	model    Model
	dir      string
	recorder CacheRecorder
	logger   zerolog.Logger

	mu       sync.RWMutex
	memCache map[string][]float32
}

// NewCachedModel wraps model. An empty dir keeps the cache in memory only.
// Failed disk writes are logged and otherwise ignored.
func NewCachedModel(model Model, dir string, recorder CacheRecorder, logger zerolog.Logger) (*CachedModel, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return &CachedModel{
		model:    model,
		dir:      dir,
		recorder: recorder,
		logger:   logger,
		memCache: make(map[string][]float32),
	}, nil
}

// ModelID returns the identifier of the wrapped model.
func (c *CachedModel) ModelID() string {
	return c.model.ModelID()
}

// Predict serves each head from cache and forwards only the missing heads.
func (c *CachedModel) Predict(ctx context.Context, enc Encoding, heads ...string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(heads))
	keys := make(map[string]string, len(heads))
	var missing []string
	for _, head := range heads {
		key := c.cacheKey(enc, head)
		keys[head] = key
		if vec := c.lookup(key); vec != nil {
			out[head] = vec
			c.recordHit(ctx)
			continue
		}
		missing = append(missing, head)
		c.recordMiss(ctx)
	}
	if len(missing) == 0 {
		return out, nil
	}
	fresh, err := c.model.Predict(ctx, enc, missing...)
	if err != nil {
		return nil, err
	}
	for _, head := range missing {
		vec, ok := fresh[head]
		if !ok {
			continue
		}
		c.storeInMemory(keys[head], vec)
		if err := c.saveToDisk(keys[head], vec); err != nil {
			c.logger.Warn().Err(err).Str("dir", c.dir).Str("head", head).Msg("cache write failed")
		}
		out[head] = cloneVector(vec)
	}
	return out, nil
}

func (c *CachedModel) lookup(key string) []float32 {
	if vec := c.getFromCache(key); vec != nil {
		return vec
	}
	vec, err := c.loadFromDisk(key)
	if err != nil {
		return nil
	}
	c.storeInMemory(key, vec)
	return cloneVector(vec)
}

func (c *CachedModel) recordHit(ctx context.Context) {
	if c.recorder != nil {
		c.recorder.RecordCacheHit(ctx)
	}
}

func (c *CachedModel) recordMiss(ctx context.Context) {
	if c.recorder != nil {
		c.recorder.RecordCacheMiss(ctx)
	}
}

func (c *CachedModel) cacheKey(enc Encoding, head string) string {
	h := sha1.New()
	writeString(h, c.model.ModelID())
	writeString(h, head)
	writeInts(h, enc.InputIDs)
	writeInts(h, enc.TokenTypeIDs)
	return hex.EncodeToString(h.Sum(nil))
}

func writeString(h hash.Hash, s string) {
	_, _ = h.Write([]byte(s))
	_, _ = h.Write([]byte{'|'})
}

func writeInts(h hash.Hash, values []int64) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(len(values)))
	_, _ = h.Write(buf)
	for _, v := range values {
		binary.LittleEndian.PutUint64(buf, uint64(v))
		_, _ = h.Write(buf)
	}
}

func (c *CachedModel) getFromCache(key string) []float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if vec, ok := c.memCache[key]; ok {
		return cloneVector(vec)
	}
	return nil
}

func (c *CachedModel) storeInMemory(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memCache[key] = cloneVector(vec)
}

func (c *CachedModel) loadFromDisk(key string) ([]float32, error) {
	if c.dir == "" {
		return nil, os.ErrNotExist
	}
	path := filepath.Join(c.dir, key+".bin")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("cache file too small: %s", path)
	}
	length := int(binary.LittleEndian.Uint32(data[:4]))
	data = data[4:]
	if len(data) != length*4 {
		return nil, fmt.Errorf("cache length mismatch: %s", path)
	}
	vec := make([]float32, length)
	for i := 0; i < length; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4 : (i+1)*4]))
	}
	return vec, nil
}

func (c *CachedModel) saveToDisk(key string, vec []float32) error {
	if c.dir == "" {
		return nil
	}
	path := filepath.Join(c.dir, key+".bin")
	buf := make([]byte, 4+len(vec)*4)
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(vec)))
	off := 4
	for _, v := range vec {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
		off += 4
	}
	// Workers may race on the same key, so each write gets its own temp file.
	tmp, err := os.CreateTemp(c.dir, key+"-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
