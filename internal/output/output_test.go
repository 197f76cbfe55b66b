package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, _ := newTestUI()
	u.Info("hello %s", "world")
	assert.Contains(t, out.String(), "hello world")
}

func TestSuccess(t *testing.T) {
	u, out, _ := newTestUI()
	u.Success("done %d", 42)
	assert.Contains(t, out.String(), "done 42")
}

func TestWarning(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Warning("careful %s", "now")
	assert.Contains(t, errOut.String(), "careful now")
}

func TestError(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Error("failed %s", "badly")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestVerboseLog_Enabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = true
	u.VerboseLog("detail %d", 1)
	assert.Contains(t, out.String(), "detail 1")
}

func TestVerboseLog_Disabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = false
	u.VerboseLog("detail %d", 1)
	assert.Empty(t, out.String())
}

func TestDryRunMsg_Enabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = true
	u.DryRunMsg("would create %s", "file")
	assert.Contains(t, errOut.String(), "[DRY-RUN]")
	assert.Contains(t, errOut.String(), "would create file")
}

func TestDryRunMsg_Disabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = false
	u.DryRunMsg("would create %s", "file")
	assert.Empty(t, errOut.String())
}

func TestColorHelpers(t *testing.T) {
	// Color helpers should return non-empty strings
	assert.NotEmpty(t, Cyan("test"))
	assert.NotEmpty(t, Green("test"))
	assert.NotEmpty(t, Yellow("test"))
	assert.NotEmpty(t, Red("test"))
}

func TestPhaseColor(t *testing.T) {
	assert.Contains(t, PhaseColor("running"), "running")
	assert.Contains(t, PhaseColor("paused"), "paused")
	assert.Contains(t, PhaseColor("break"), "break")
	assert.Equal(t, "idle", PhaseColor("idle"))
}

func TestActionColor(t *testing.T) {
	assert.Contains(t, ActionColor("allow"), "allow")
	assert.Contains(t, ActionColor("deny"), "deny")
	assert.Equal(t, "other", ActionColor("other"))
}

func TestClock(t *testing.T) {
	assert.Equal(t, "0:00", Clock(0))
	assert.Equal(t, "0:00", Clock(-5))
	assert.Equal(t, "4:05", Clock(245))
	assert.Equal(t, "25:00", Clock(1500))
	assert.Equal(t, "1:00:01", Clock(3601))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "45s", Duration(45))
	assert.Equal(t, "25m", Duration(1500))
	assert.Equal(t, "2h", Duration(7200))
	assert.Equal(t, "1h 5m", Duration(3900))
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"Domain"})
	require.NotNil(t, table)

	table.Append([]string{"reddit.com"})
	table.Append([]string{"tiktok.com"})
	err := table.Render()
	require.NoError(t, err)

	result := out.String()
	assert.True(t, strings.Contains(result, "reddit.com"), "table output should contain domains")
	assert.True(t, strings.Contains(result, "tiktok.com"), "table output should contain domains")
}
