package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ENV", "dev")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("OBJECT_STORE", "local")
	t.Setenv("LOCAL_STORE_DIR", t.TempDir())
	t.Setenv("CONFIG_FILE", "")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunLeadExpiry(t *testing.T) {
	out, err := runCLI(t, "run", "lead_expiry")
	require.NoError(t, err)
	require.Contains(t, out, "job:          lead_expiry")
	require.Contains(t, out, "status:       ok")
}

func TestRunOrphanDryRun(t *testing.T) {
	out, err := runCLI(t, "run", "orphan_cleanup", "--dry-run")
	require.NoError(t, err)
	require.Contains(t, out, "dry run:")
}

func TestRunDryRunRejectedForOtherJobs(t *testing.T) {
	_, err := runCLI(t, "run", "lead_expiry", "--dry-run")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "orphan_cleanup"))
}

func TestRunUnknownJob(t *testing.T) {
	_, err := runCLI(t, "run", "nope")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown job")
}

func TestRunRequiresJobName(t *testing.T) {
	_, err := runCLI(t, "run")
	require.Error(t, err)
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	_, err := runCLI(t, "migrate")
	require.Error(t, err)
}
