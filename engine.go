package wasmer2

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/utnet-org/wasmer2/internal/backend"
	"github.com/utnet-org/wasmer2/internal/wasm"
)

// Engine owns the selected compiler backend and drives compilation. Compiled
// artifacts are immutable, stay resident for as long as any module or instance
// references them, and are shared by every instance of the same module.
//
// An Engine is safe for concurrent use once created.
type Engine struct {
	backend  wasm.Backend
	features wasm.Features
	logger   *zap.Logger

	// cache is keyed by a hash of the module bytes, the backend identity and
	// the enabled features. Nil when caching is disabled.
	cache *lru.Cache[uint64, wasm.Artifact]
}

// NewEngine creates an Engine from the given configuration, failing fast on an
// unsupported combination before any compilation work begins.
func NewEngine(cfg Config) (*Engine, error) {
	c, ok := cfg.(*config)
	if !ok {
		return nil, fmt.Errorf("unsupported Config implementation: %T", cfg)
	}

	var b wasm.Backend
	switch c.backend {
	case Baseline:
		b = backend.NewBaseline()
	case OptimizingA:
		b = backend.NewOptimizingA()
	case OptimizingB:
		b = backend.NewOptimizingB()
	default:
		return nil, fmt.Errorf("unknown backend %q", c.backend)
	}

	e := &Engine{backend: b, features: c.features, logger: c.logger}
	if c.cacheEnabled {
		if c.cacheSize < 1 {
			return nil, fmt.Errorf("artifact cache size must be at least 1, have %d", c.cacheSize)
		}
		cache, err := lru.New[uint64, wasm.Artifact](c.cacheSize)
		if err != nil {
			return nil, err
		}
		e.cache = cache
	}
	return e, nil
}

// Backend returns the name of the configured backend.
func (e *Engine) Backend() BackendKind {
	return BackendKind(e.backend.Name())
}

// compile produces the artifact for a validated module, consulting the cache
// first when enabled. source is the original binary, used only as a cache key.
func (e *Engine) compile(m *wasm.Module, source []byte) (wasm.Artifact, error) {
	var key uint64
	if e.cache != nil {
		key = e.artifactKey(source)
		if artifact, ok := e.cache.Get(key); ok {
			e.logger.Debug("artifact cache hit",
				zap.String("backend", e.backend.Name()),
				zap.Uint64("key", key))
			return artifact, nil
		}
	}

	start := time.Now()
	artifact, err := e.backend.Compile(m, e.features)
	if err != nil {
		return nil, err
	}
	e.logger.Info("compiled module",
		zap.String("backend", e.backend.Name()),
		zap.Uint32("functions", artifact.FunctionCount()),
		zap.Duration("duration", time.Since(start)))

	if e.cache != nil {
		e.cache.Add(key, artifact)
	}
	return artifact, nil
}

// artifactKey hashes everything an artifact's shape depends on: the module
// bytes, the backend identity and the feature bits.
func (e *Engine) artifactKey(source []byte) uint64 {
	d := xxhash.New()
	_, _ = d.Write(source)
	_, _ = d.WriteString(e.backend.Name())
	var features [8]byte
	binary.LittleEndian.PutUint64(features[:], uint64(e.features))
	_, _ = d.Write(features[:])
	return d.Sum64()
}
