package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/healthsync/internal/auth"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	return executeWithInput(t, "", args...)
}

func executeWithInput(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	t.Setenv("HEALTHSYNC_CONFIG", "")
	t.Setenv("CHECKPOINT_BACKEND", "memory")
	t.Setenv("SQLITE_PATH", ":memory:")
	t.Setenv("USER_ID", "user-7")
	t.Setenv("TIMEZONE", "UTC")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestEpochsCommandListsPlannedWindows(t *testing.T) {
	t.Setenv("PAST_PERIODS", "1")
	lines := strings.Split(strings.TrimSpace(execute(t, "epochs")), "\n")
	require.Len(t, lines, 14)
	require.True(t, strings.HasPrefix(lines[0], "#"))
}

func TestTokenCommandMintsVerifiableToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("JWT_ISSUER", "healthsync")
	token := strings.TrimSpace(execute(t, "token", "--scope", auth.ScopeSamplesRead))

	claims, err := auth.Parse(token, auth.Config{Secret: "cli-secret", Issuer: "healthsync"})
	require.NoError(t, err)
	require.Equal(t, "user-7", claims.Subject)
	require.True(t, claims.HasScope(auth.ScopeSamplesRead))
	require.False(t, claims.HasScope(auth.ScopeSamplesWrite))
}

func TestImportReadsStdin(t *testing.T) {
	out := executeWithInput(t,
		`{"activity_type":"heart_rate","date":"2020-03-02 08:00:00 +0000","quantity":61}`+"\n",
		"import")
	require.Contains(t, out, "imported 1 samples")
}

func TestStatusListsCatalogWithoutCheckpoints(t *testing.T) {
	t.Setenv("ACTIVITIES", "heart_rate,step_count")
	lines := strings.Split(strings.TrimSpace(execute(t, "status")), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "heart_rate")
	require.Contains(t, lines[1], "never")
	require.Contains(t, lines[2], "step_count")
}
