package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClampJitterRatio(t *testing.T) {
	require.Equal(t, 0.0, clampJitterRatio(-0.1))
	require.Equal(t, 1.0, clampJitterRatio(1.5))
	require.Equal(t, 0.4, clampJitterRatio(0.4))
}

func TestJitteredInterval(t *testing.T) {
	base := 10 * time.Second
	require.Equal(t, base, jitteredInterval(base, 0, 0.2))
	require.Equal(t, 8*time.Second, jitteredInterval(base, 0.2, 0))
	require.Equal(t, 10*time.Second, jitteredInterval(base, 0.2, 0.5))
	require.Equal(t, 12*time.Second, jitteredInterval(base, 0.2, 1))
	require.Equal(t, time.Millisecond, jitteredInterval(base, 1, 0))
	require.Zero(t, jitteredInterval(0, 0.2, 0.5))
}
