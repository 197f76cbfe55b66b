package cmd

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/focus/internal/blocklist"
)

func TestBlockAddRemoveList(t *testing.T) {
	testEnv(t)
	out := captureOutput(t)

	require.NoError(t, blockAddRun([]string{"https://www.Reddit.com/r/golang", "tiktok.com"}))
	require.NoError(t, blockAddRun([]string{"reddit.com"}))
	assert.Contains(t, out.String(), "already blocked")

	s, err := getStore()
	require.NoError(t, err)
	list, err := blocklist.Load(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{"reddit.com", "tiktok.com"}, list)

	out.Reset()
	require.NoError(t, blockListRun())
	assert.Contains(t, out.String(), "reddit.com")
	assert.Contains(t, out.String(), "tiktok.com")

	require.NoError(t, blockRemoveRun([]string{"tiktok.com"}))
	err = blockRemoveRun([]string{"tiktok.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not on the block list")

	err = blockAddRun([]string{"bad host"})
	assert.ErrorIs(t, err, blocklist.ErrInvalidDomain)
}

func TestBlockList_Empty(t *testing.T) {
	testEnv(t)
	out := captureOutput(t)

	require.NoError(t, blockListRun())
	assert.Contains(t, out.String(), "empty")
}

func TestBlockList_JSON(t *testing.T) {
	testEnv(t)
	out := captureOutput(t)
	blockJSON = true
	t.Cleanup(func() { blockJSON = false })

	require.NoError(t, blockListRun())
	var list []string
	require.NoError(t, json.Unmarshal(out.Bytes(), &list))
	assert.Empty(t, list)
}
