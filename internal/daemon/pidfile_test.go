package daemon

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_WriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "focus.pid")
	pf := NewPIDFile(path)

	err := pf.WriteRecord(Record{PID: 12345, Owner: "abc", Port: 7777})
	require.NoError(t, err)

	r, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, r.PID)
	assert.Equal(t, "abc", r.Owner)
	assert.Equal(t, 7777, r.Port)
}

func TestPIDFile_Write_CurrentPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "focus.pid")
	pf := NewPIDFile(path)

	require.NoError(t, pf.Write("owner-1", 8080))

	r, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), r.PID)
	assert.Equal(t, "owner-1", r.Owner)
	assert.False(t, r.StartedAt.IsZero())
}

func TestPIDFile_Read_MissingFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid"))

	_, err := pf.Read()
	assert.Error(t, err)
}

func TestPIDFile_Read_InvalidContent(t *testing.T) {
	for _, content := range []string{"not-json\n", `{"pid":0}`} {
		path := filepath.Join(t.TempDir(), "bad.pid")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		_, err := NewPIDFile(path).Read()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid PID file content")
	}
}

func TestPIDFile_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "focus.pid")
	pf := NewPIDFile(path)
	require.NoError(t, pf.WriteRecord(Record{PID: 1}))

	require.NoError(t, pf.Remove())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Error(t, pf.Remove())
}

func TestPIDFile_IsRunning_CurrentProcess(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "focus.pid"))
	require.NoError(t, pf.Write("", 0))

	r, running := pf.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), r.PID)
}

func TestPIDFile_IsRunning_DeadProcess(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "focus.pid"))

	// Use a very high PID that almost certainly doesn't exist.
	require.NoError(t, pf.WriteRecord(Record{PID: 999999}))

	r, running := pf.IsRunning()
	assert.Equal(t, 999999, r.PID)
	assert.False(t, running)
}

func TestPIDFile_IsRunning_NoFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid"))

	r, running := pf.IsRunning()
	assert.Zero(t, r.PID)
	assert.False(t, running)
}

func TestPIDFile_Signal(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "focus.pid"))
	require.NoError(t, pf.Write("", 0))

	// Signal 0 just checks if process exists, doesn't actually send a signal.
	assert.NoError(t, pf.Signal(syscall.Signal(0)))
}

func TestPIDFile_Signal_NoFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid"))

	err := pf.Signal(syscall.Signal(0))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read PID file")
}
