package wasm

import (
	"fmt"
	"strings"
)

// Features are the currently enabled instruction-set extensions, defaulting to
// Features20191205 (WebAssembly 1.0).
type Features uint64

const (
	// FeatureMutableGlobal allows globals to be mutable. This was finished in
	// WebAssembly 1.0 (20191205) and is enabled by default.
	FeatureMutableGlobal Features = 1 << iota

	// FeatureSignExtensionOps enables sign-extension operations such as
	// i32.extend8_s. This was not finished in WebAssembly 1.0.
	//
	// See https://github.com/WebAssembly/spec/blob/main/proposals/sign-extension-ops/Overview.md
	FeatureSignExtensionOps

	// FeatureNonTrappingFloatToIntConversion enables i32.trunc_sat_f32_s and
	// friends.
	//
	// See https://github.com/WebAssembly/spec/blob/main/proposals/nontrapping-float-to-int-conversion/Overview.md
	FeatureNonTrappingFloatToIntConversion

	// FeatureMultiValue enables multiple results and block parameters.
	//
	// See https://github.com/WebAssembly/spec/blob/main/proposals/multi-value/Overview.md
	FeatureMultiValue
)

// Features20191205 are the feature flags included in the WebAssembly 1.0
// (20191205) Recommendation.
const Features20191205 = FeatureMutableGlobal

// FeaturesFinished includes all finished proposals this runtime supports.
const FeaturesFinished = FeatureMutableGlobal | FeatureSignExtensionOps |
	FeatureNonTrappingFloatToIntConversion | FeatureMultiValue

// Set assigns the value for the given feature.
func (f Features) Set(feature Features, val bool) Features {
	if val {
		return f | feature
	}
	return f &^ feature
}

// Get returns the value of the given feature.
func (f Features) Get(feature Features) bool {
	return f&feature != 0
}

// Require fails with a configuration-style error if the given feature is not
// enabled. The inputs are always defined constants, so we don't check they
// are single-bit.
func (f Features) Require(feature Features) error {
	if f&feature == 0 {
		return fmt.Errorf("feature %q is disabled", featureName(feature))
	}
	return nil
}

// String implements fmt.Stringer by returning enabled features sorted by bit position.
func (f Features) String() string {
	var names []string
	for i := Features(1); i != 0 && i <= f; i <<= 1 {
		if f.Get(i) {
			names = append(names, featureName(i))
		}
	}
	return strings.Join(names, "|")
}

func featureName(f Features) string {
	switch f {
	case FeatureMutableGlobal:
		return "mutable-global"
	case FeatureSignExtensionOps:
		return "sign-extension-ops"
	case FeatureNonTrappingFloatToIntConversion:
		return "nontrapping-float-to-int-conversion"
	case FeatureMultiValue:
		return "multi-value"
	}
	return "unknown"
}
