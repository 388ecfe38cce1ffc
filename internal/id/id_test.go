package id

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSyntheticNodeID_RoundTripsThroughSplitSynthetic(t *testing.T) {
	synthetic := SyntheticNodeID("mid", 3)
	require.Equal(t, NodeID("mid#3"), synthetic)

	base, index, ok := SplitSynthetic(synthetic)
	require.True(t, ok)
	require.Equal(t, NodeID("mid"), base)
	require.Equal(t, 3, index)
}

func TestSplitSynthetic_OrdinaryNodeIDIsNotSynthetic(t *testing.T) {
	_, _, ok := SplitSynthetic("mid")
	require.False(t, ok)
}

func TestSplitSynthetic_NonNumericSuffixIsNotSynthetic(t *testing.T) {
	_, _, ok := SplitSynthetic("weird#name")
	require.False(t, ok)
}
