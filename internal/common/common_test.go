package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScratchName(t *testing.T) {
	// Separators collapse so the scratch name is one path component.
	require.Equal(t, "a.txt.xz", ScratchName("a.txt"))
	require.Equal(t, "sub#b.txt.xz", ScratchName("sub/b.txt"))
	require.Equal(t, "sub#deep#c.bin.xz", ScratchName("sub\\deep/c.bin"))
}
