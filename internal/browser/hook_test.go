package browser

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/focus/internal/gate"
	"github.com/joescharf/focus/internal/models"
)

type fakeDecider struct {
	verdict models.Verdict
	err     error
	seen    []gate.Destination
}

func (f *fakeDecider) Decide(_ context.Context, d gate.Destination) (models.Verdict, error) {
	f.seen = append(f.seen, d)
	return f.verdict, f.err
}

type fakeFetch struct {
	cdp.Fetch
	continued []fetch.RequestID
	fulfilled []*fetch.FulfillRequestArgs
}

func (f *fakeFetch) ContinueRequest(_ context.Context, args *fetch.ContinueRequestArgs) error {
	f.continued = append(f.continued, args.RequestID)
	return nil
}

func (f *fakeFetch) FulfillRequest(_ context.Context, args *fetch.FulfillRequestArgs) error {
	f.fulfilled = append(f.fulfilled, args)
	return nil
}

type fakeRuntime struct {
	cdp.Runtime
	value json.RawMessage
	err   error
}

func (f *fakeRuntime) Evaluate(_ context.Context, _ *runtime.EvaluateArgs) (*runtime.EvaluateReply, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &runtime.EvaluateReply{Result: runtime.RemoteObject{Value: f.value}}, nil
}

type fakePage struct {
	cdp.Page
	navigated []string
}

func (f *fakePage) Navigate(_ context.Context, args *page.NavigateArgs) (*page.NavigateReply, error) {
	f.navigated = append(f.navigated, args.URL)
	return &page.NavigateReply{}, nil
}

func pausedEvent(id, url string, frame page.FrameID) *fetch.RequestPausedReply {
	return &fetch.RequestPausedReply{
		RequestID:    fetch.RequestID(id),
		Request:      network.Request{URL: url},
		FrameID:      frame,
		ResourceType: network.ResourceTypeDocument,
	}
}

func pageValue(t *testing.T, url, title, desc string) json.RawMessage {
	t.Helper()
	inner, err := json.Marshal(map[string]string{"url": url, "title": title, "description": desc})
	require.NoError(t, err)
	outer, err := json.Marshal(string(inner))
	require.NoError(t, err)
	return outer
}

const blockURL = "http://127.0.0.1:7777/blocked?url=x&reason=domain_blocked"

func TestHandlePaused_Allow(t *testing.T) {
	d := &fakeDecider{verdict: models.Verdict{Action: models.ActionAllow, Reason: models.ReasonAllowed}}
	h := New("", d, zerolog.Nop())
	f := &fakeFetch{}

	h.handlePaused(context.Background(), f, "main", pausedEvent("r1", "https://go.dev/", "main"))

	assert.Equal(t, []fetch.RequestID{"r1"}, f.continued)
	assert.Empty(t, f.fulfilled)
	require.Len(t, d.seen, 1)
	assert.True(t, d.seen[0].IsTopLevel)
	assert.False(t, d.seen[0].HasContent)
}

func TestHandlePaused_Subframe(t *testing.T) {
	d := &fakeDecider{verdict: models.Verdict{Action: models.ActionAllow, Reason: models.ReasonSubframe}}
	h := New("", d, zerolog.Nop())
	f := &fakeFetch{}

	h.handlePaused(context.Background(), f, "main", pausedEvent("r1", "https://tiktok.com/embed", "child"))

	require.Len(t, d.seen, 1)
	assert.False(t, d.seen[0].IsTopLevel)
	assert.Len(t, f.continued, 1)
}

func TestHandlePaused_Deny(t *testing.T) {
	d := &fakeDecider{verdict: models.Verdict{
		Action:     models.ActionDeny,
		Reason:     models.ReasonDomainBlocked,
		RedirectTo: blockURL,
	}}
	h := New("", d, zerolog.Nop())
	f := &fakeFetch{}

	h.handlePaused(context.Background(), f, "main", pausedEvent("r2", "https://www.tiktok.com/", "main"))

	assert.Empty(t, f.continued)
	require.Len(t, f.fulfilled, 1)
	got := f.fulfilled[0]
	assert.Equal(t, fetch.RequestID("r2"), got.RequestID)
	assert.Equal(t, 302, got.ResponseCode)
	assert.Contains(t, got.ResponseHeaders, fetch.HeaderEntry{Name: "Location", Value: blockURL})
}

func TestHandlePaused_GateErrorAllows(t *testing.T) {
	d := &fakeDecider{err: errors.New("store unavailable")}
	h := New("", d, zerolog.Nop())
	f := &fakeFetch{}

	h.handlePaused(context.Background(), f, "main", pausedEvent("r3", "https://www.tiktok.com/", "main"))

	assert.Len(t, f.continued, 1)
	assert.Empty(t, f.fulfilled)
}

func TestParsePageInfo(t *testing.T) {
	info, ok := parsePageInfo(pageValue(t, "https://youtu.be/dQw4w9WgXcQ", "Epic prank - YouTube", "desc"))
	require.True(t, ok)
	assert.Equal(t, "https://youtu.be/dQw4w9WgXcQ", info.URL)
	assert.Equal(t, "Epic prank - YouTube", info.Title)
	assert.Equal(t, "desc", info.Description)

	for _, raw := range []string{``, `42`, `"not json"`, `"{}"`} {
		_, ok := parsePageInfo(json.RawMessage(raw))
		assert.False(t, ok, raw)
	}
}

func TestCheckContent_Deny(t *testing.T) {
	d := &fakeDecider{verdict: models.Verdict{
		Action:     models.ActionDeny,
		Reason:     models.ReasonContentDenied,
		RedirectTo: blockURL,
	}}
	h := New("", d, zerolog.Nop())
	rt := &fakeRuntime{value: pageValue(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "Epic prank - YouTube", "")}
	pg := &fakePage{}

	h.checkContent(context.Background(), rt, pg)

	require.Len(t, d.seen, 1)
	assert.True(t, d.seen[0].HasContent)
	assert.Equal(t, "Epic prank - YouTube", d.seen[0].Title)
	assert.Equal(t, []string{blockURL}, pg.navigated)
}

func TestCheckContent_Allow(t *testing.T) {
	d := &fakeDecider{verdict: models.Verdict{Action: models.ActionAllow, Reason: models.ReasonContentAllowed}}
	h := New("", d, zerolog.Nop())
	rt := &fakeRuntime{value: pageValue(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "Calculus lecture", "")}
	pg := &fakePage{}

	h.checkContent(context.Background(), rt, pg)

	assert.Len(t, d.seen, 1)
	assert.Empty(t, pg.navigated)
}

func TestCheckContent_SkipsNonContentPages(t *testing.T) {
	d := &fakeDecider{}
	h := New("", d, zerolog.Nop())
	pg := &fakePage{}

	h.checkContent(context.Background(), &fakeRuntime{value: pageValue(t, "https://www.youtube.com/", "YouTube", "")}, pg)
	h.checkContent(context.Background(), &fakeRuntime{err: errors.New("target closed")}, pg)

	assert.Empty(t, d.seen)
	assert.Empty(t, pg.navigated)
}

func TestDocumentPatterns(t *testing.T) {
	p := documentPatterns()
	require.Len(t, p, 1)
	require.NotNil(t, p[0].ResourceType)
	assert.Equal(t, network.ResourceTypeDocument, *p[0].ResourceType)
	assert.Equal(t, fetch.RequestStageRequest, p[0].RequestStage)
}
