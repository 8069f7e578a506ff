package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHumanReadableSize(t *testing.T) {
	require.Equal(t, "0 B", humanReadableSize(0))
	require.Equal(t, "999 B", humanReadableSize(999))
	require.Equal(t, "1.0 kB", humanReadableSize(1000))
	require.Equal(t, "1.5 kB", humanReadableSize(1500))
	require.Equal(t, "2.5 MB", humanReadableSize(2500000))
	require.Equal(t, "3.0 GB", humanReadableSize(3000000000))
}
