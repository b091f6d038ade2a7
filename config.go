package wasmer2

import (
	"go.uber.org/zap"

	"github.com/utnet-org/wasmer2/internal/wasm"
)

// BackendKind selects the compiler implementation an Engine uses. All backends
// produce artifacts with identical observable semantics; they differ only in
// compilation latency and execution speed.
type BackendKind string

const (
	// Baseline lowers function bodies as-is, favoring compilation speed.
	Baseline BackendKind = "baseline"
	// OptimizingA additionally folds constant expressions at compile time.
	OptimizingA BackendKind = "optimizing-a"
	// OptimizingB folds constants and strength-reduces multiplication,
	// division and remainder by constant powers of two.
	OptimizingB BackendKind = "optimizing-b"
)

// Config configures an Engine prior to NewEngine, with the default
// implementation as NewConfig.
//
// Each setter returns a new Config, leaving the receiver unchanged, so a base
// configuration can be shared and specialized safely:
//
//	base := wasmer2.NewConfig().WithArtifactCache(false)
//	fast, _ := wasmer2.NewEngine(base.WithBackend(wasmer2.Baseline))
//	opt, _ := wasmer2.NewEngine(base.WithBackend(wasmer2.OptimizingB))
type Config interface {
	// WithBackend selects the compiler backend. Defaults to Baseline.
	// NewEngine rejects unrecognized values.
	WithBackend(BackendKind) Config

	// WithFeatureMutableGlobal allows globals to be mutable. This defaults to
	// true as the feature was finished in WebAssembly 1.0 (20191205).
	WithFeatureMutableGlobal(enabled bool) Config

	// WithFeatureSignExtensionOps enables sign-extend operations such as
	// i32.extend8_s. This defaults to false as the feature was not finished in
	// WebAssembly 1.0 (20191205).
	//
	// See https://github.com/WebAssembly/spec/blob/main/proposals/sign-extension-ops/Overview.md
	WithFeatureSignExtensionOps(enabled bool) Config

	// WithFeatureNonTrappingFloatToIntConversion enables saturating float to
	// integer conversions such as i32.trunc_sat_f32_s. This defaults to false
	// as the feature was not finished in WebAssembly 1.0 (20191205).
	//
	// See https://github.com/WebAssembly/spec/blob/main/proposals/nontrapping-float-to-int-conversion/Overview.md
	WithFeatureNonTrappingFloatToIntConversion(enabled bool) Config

	// WithFeatureMultiValue enables multiple results and block parameters.
	// This defaults to false as the feature was not finished in WebAssembly
	// 1.0 (20191205).
	//
	// See https://github.com/WebAssembly/spec/blob/main/proposals/multi-value/Overview.md
	WithFeatureMultiValue(enabled bool) Config

	// WithArtifactCache toggles the engine's compiled-artifact cache. When
	// enabled, compiling the same module bytes on the same engine reuses the
	// previously built artifact. Defaults to true.
	WithArtifactCache(enabled bool) Config

	// WithArtifactCacheSize bounds the artifact cache to n entries, evicting
	// least recently used. Defaults to 64. NewEngine rejects n < 1.
	WithArtifactCacheSize(n int) Config

	// WithLogger sets the logger for compile and instantiate events. Defaults
	// to zap.NewNop().
	WithLogger(logger *zap.Logger) Config
}

// NewConfig returns the default configuration.
func NewConfig() Config {
	return &config{
		backend:      Baseline,
		features:     wasm.Features20191205,
		cacheEnabled: true,
		cacheSize:    64,
		logger:       zap.NewNop(),
	}
}

type config struct {
	backend      BackendKind
	features     wasm.Features
	cacheEnabled bool
	cacheSize    int
	logger       *zap.Logger
}

// clone ensures all fields are copied even if zero.
func (c *config) clone() *config {
	ret := *c
	return &ret
}

// WithBackend implements Config.WithBackend.
func (c *config) WithBackend(b BackendKind) Config {
	ret := c.clone()
	ret.backend = b
	return ret
}

// WithFeatureMutableGlobal implements Config.WithFeatureMutableGlobal.
func (c *config) WithFeatureMutableGlobal(enabled bool) Config {
	ret := c.clone()
	ret.features = ret.features.Set(wasm.FeatureMutableGlobal, enabled)
	return ret
}

// WithFeatureSignExtensionOps implements Config.WithFeatureSignExtensionOps.
func (c *config) WithFeatureSignExtensionOps(enabled bool) Config {
	ret := c.clone()
	ret.features = ret.features.Set(wasm.FeatureSignExtensionOps, enabled)
	return ret
}

// WithFeatureNonTrappingFloatToIntConversion implements
// Config.WithFeatureNonTrappingFloatToIntConversion.
func (c *config) WithFeatureNonTrappingFloatToIntConversion(enabled bool) Config {
	ret := c.clone()
	ret.features = ret.features.Set(wasm.FeatureNonTrappingFloatToIntConversion, enabled)
	return ret
}

// WithFeatureMultiValue implements Config.WithFeatureMultiValue.
func (c *config) WithFeatureMultiValue(enabled bool) Config {
	ret := c.clone()
	ret.features = ret.features.Set(wasm.FeatureMultiValue, enabled)
	return ret
}

// WithArtifactCache implements Config.WithArtifactCache.
func (c *config) WithArtifactCache(enabled bool) Config {
	ret := c.clone()
	ret.cacheEnabled = enabled
	return ret
}

// WithArtifactCacheSize implements Config.WithArtifactCacheSize.
func (c *config) WithArtifactCacheSize(n int) Config {
	ret := c.clone()
	ret.cacheSize = n
	return ret
}

// WithLogger implements Config.WithLogger.
func (c *config) WithLogger(logger *zap.Logger) Config {
	if logger == nil {
		logger = zap.NewNop()
	}
	ret := c.clone()
	ret.logger = logger
	return ret
}
