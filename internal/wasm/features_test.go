package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeatures_setGet(t *testing.T) {
	f := Features20191205
	require.True(t, f.Get(FeatureMutableGlobal))
	require.False(t, f.Get(FeatureMultiValue))

	f = f.Set(FeatureMultiValue, true)
	require.True(t, f.Get(FeatureMultiValue))

	f = f.Set(FeatureMutableGlobal, false)
	require.False(t, f.Get(FeatureMutableGlobal))
}

func TestFeatures_Require(t *testing.T) {
	require.NoError(t, FeaturesFinished.Require(FeatureSignExtensionOps))

	err := Features20191205.Require(FeatureSignExtensionOps)
	require.EqualError(t, err, `feature "sign-extension-ops" is disabled`)
}

func TestFeatures_String(t *testing.T) {
	require.Equal(t, "", Features(0).String())
	require.Equal(t, "mutable-global", Features20191205.String())
	require.Equal(t, "mutable-global|sign-extension-ops|nontrapping-float-to-int-conversion|multi-value",
		FeaturesFinished.String())
}
