package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/focus/internal/daemon"
)

func TestPidFile_Path(t *testing.T) {
	dir := testEnv(t)

	pf := pidFile()
	expected := filepath.Join(dir, "focus-daemon.pid")
	assert.Equal(t, expected, pf.Path)
}

func TestDaemonLogPath(t *testing.T) {
	dir := testEnv(t)

	logPath := daemonLogPath()
	expected := filepath.Join(dir, "focus-daemon.log")
	assert.Equal(t, expected, logPath)
}

func TestDaemonStatusRun_NotRunning(t *testing.T) {
	testEnv(t)

	// No PID file exists, so status should show "not running" without error.
	err := daemonStatusRun()
	assert.NoError(t, err)
}

func TestDaemonStatusRun_Running(t *testing.T) {
	dir := testEnv(t)
	out := captureOutput(t)

	pf := daemon.NewPIDFile(filepath.Join(dir, "focus-daemon.pid"))
	require.NoError(t, pf.Write("owner-1", 7788))

	require.NoError(t, daemonStatusRun())
	assert.Contains(t, out.String(), "running")
	assert.Contains(t, out.String(), "http://127.0.0.1:7788")
}

func TestDaemonStopRun_NotRunning(t *testing.T) {
	testEnv(t)

	// No PID file exists, so stop should return an error.
	err := daemonStopRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestDaemonStartRun_AlreadyRunning(t *testing.T) {
	dir := testEnv(t)

	// Write a PID file for the current process (which is alive).
	pf := daemon.NewPIDFile(filepath.Join(dir, "focus-daemon.pid"))
	require.NoError(t, pf.Write("owner-1", 7777))
	t.Cleanup(func() { _ = os.Remove(pf.Path) })

	err := daemonStartRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}
