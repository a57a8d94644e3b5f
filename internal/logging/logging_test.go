package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSinkWritesToRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "healthsync.log")
	sink := NewSink(path)
	sink.Logger("coordinator").Printf("epoch %d done", 3)
	require.NoError(t, sink.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "[coordinator] epoch 3 done")
}

func TestSinkWithoutFile(t *testing.T) {
	sink := NewSink(" ")
	require.Equal(t, os.Stderr, sink.Writer())
	require.NoError(t, sink.Close())
}
