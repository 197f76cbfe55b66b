// Package browser enforces gate verdicts in Chrome through the DevTools
// protocol. Document requests are paused with the Fetch domain and either
// continued or answered with a redirect to the block page. Video pages are
// checked again once their title is known.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/joescharf/focus/internal/gate"
	"github.com/joescharf/focus/internal/models"
)

// DefaultDevToolsURL is Chrome's default remote debugging endpoint.
const DefaultDevToolsURL = "http://127.0.0.1:9222"

// DefaultSettle is how long to wait after an in-page navigation before the
// title is read. Single-page sites update it after the URL changes.
const DefaultSettle = time.Second

// Decider is satisfied by *gate.Gate.
type Decider interface {
	Decide(ctx context.Context, d gate.Destination) (models.Verdict, error)
}

// Hook attaches to a browser page target and enforces verdicts on it.
type Hook struct {
	DevToolsURL string
	Gate        Decider
	Settle      time.Duration
	Log         zerolog.Logger
}

// New creates a hook for the DevTools endpoint at devtoolsURL.
func New(devtoolsURL string, g Decider, log zerolog.Logger) *Hook {
	if devtoolsURL == "" {
		devtoolsURL = DefaultDevToolsURL
	}
	return &Hook{
		DevToolsURL: devtoolsURL,
		Gate:        g,
		Settle:      DefaultSettle,
		Log:         log,
	}
}

// Run attaches to the first page target and blocks until ctx is cancelled or
// the connection drops.
func (h *Hook) Run(ctx context.Context) error {
	dt := devtool.New(h.DevToolsURL)
	pt, err := dt.Get(ctx, devtool.Page)
	if err != nil {
		if pt, err = dt.Create(ctx); err != nil {
			return fmt.Errorf("find page target at %s: %w", h.DevToolsURL, err)
		}
	}

	conn, err := rpcc.DialContext(ctx, pt.WebSocketDebuggerURL)
	if err != nil {
		return fmt.Errorf("dial devtools: %w", err)
	}
	defer func() { _ = conn.Close() }()

	h.Log.Info().Str("target", string(pt.ID)).Str("url", pt.URL).Msg("attached to browser")
	return h.attach(ctx, cdp.NewClient(conn))
}

func (h *Hook) attach(ctx context.Context, c *cdp.Client) error {
	// Event clients are created before the domains are enabled so no event
	// is missed.
	paused, err := c.Fetch.RequestPaused(ctx)
	if err != nil {
		return fmt.Errorf("subscribe request paused: %w", err)
	}
	defer func() { _ = paused.Close() }()

	loaded, err := c.Page.LoadEventFired(ctx)
	if err != nil {
		return fmt.Errorf("subscribe load event: %w", err)
	}
	defer func() { _ = loaded.Close() }()

	inDoc, err := c.Page.NavigatedWithinDocument(ctx)
	if err != nil {
		return fmt.Errorf("subscribe in-document navigation: %w", err)
	}
	defer func() { _ = inDoc.Close() }()

	if err := c.Page.Enable(ctx); err != nil {
		return fmt.Errorf("enable page domain: %w", err)
	}
	tree, err := c.Page.GetFrameTree(ctx)
	if err != nil {
		return fmt.Errorf("get frame tree: %w", err)
	}
	mainFrame := tree.FrameTree.Frame.ID

	if err := c.Fetch.Enable(ctx, &fetch.EnableArgs{Patterns: documentPatterns()}); err != nil {
		return fmt.Errorf("enable fetch domain: %w", err)
	}

	errc := make(chan error, 3)
	go func() {
		for {
			ev, err := paused.Recv()
			if err != nil {
				errc <- err
				return
			}
			h.handlePaused(ctx, c.Fetch, mainFrame, ev)
		}
	}()
	go func() {
		for {
			if _, err := loaded.Recv(); err != nil {
				errc <- err
				return
			}
			h.checkContent(ctx, c.Runtime, c.Page)
		}
	}()
	go func() {
		for {
			ev, err := inDoc.Recv()
			if err != nil {
				errc <- err
				return
			}
			if ev.FrameID != mainFrame || !isContentURL(ev.URL) {
				continue
			}
			select {
			case <-ctx.Done():
				continue
			case <-time.After(h.Settle):
			}
			h.checkContent(ctx, c.Runtime, c.Page)
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("devtools stream: %w", err)
	}
}

func documentPatterns() []fetch.RequestPattern {
	all := "*"
	doc := network.ResourceTypeDocument
	return []fetch.RequestPattern{{
		URLPattern:   &all,
		ResourceType: &doc,
		RequestStage: fetch.RequestStageRequest,
	}}
}

// handlePaused answers a paused document request. Gate errors let the
// request through.
func (h *Hook) handlePaused(ctx context.Context, f cdp.Fetch, mainFrame page.FrameID, ev *fetch.RequestPausedReply) {
	d := gate.Destination{
		URL:        ev.Request.URL,
		IsTopLevel: ev.FrameID == mainFrame,
	}
	v, err := h.Gate.Decide(ctx, d)
	if err != nil {
		h.Log.Warn().Err(err).Str("url", d.URL).Msg("gate unavailable, allowing")
	}
	if err != nil || v.Allowed() || v.RedirectTo == "" {
		if err := f.ContinueRequest(ctx, &fetch.ContinueRequestArgs{RequestID: ev.RequestID}); err != nil {
			h.Log.Debug().Err(err).Str("url", d.URL).Msg("continue request")
		}
		return
	}

	h.Log.Info().Str("url", d.URL).Str("reason", string(v.Reason)).Msg("blocked navigation")
	if err := f.FulfillRequest(ctx, redirectResponse(ev.RequestID, v.RedirectTo)); err != nil {
		h.Log.Warn().Err(err).Str("url", d.URL).Msg("fulfill redirect")
	}
}

// redirectResponse builds a 302 to location.
func redirectResponse(id fetch.RequestID, location string) *fetch.FulfillRequestArgs {
	phrase := "Found"
	return &fetch.FulfillRequestArgs{
		RequestID:    id,
		ResponseCode: 302,
		ResponseHeaders: []fetch.HeaderEntry{
			{Name: "Location", Value: location},
			{Name: "Cache-Control", Value: "no-store"},
		},
		ResponsePhrase: &phrase,
	}
}

func isContentURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	_, ok := gate.ContentID(u)
	return ok
}

// pageInfoExpr returns the page URL, title and meta description as a JSON
// string.
const pageInfoExpr = `JSON.stringify({
  url: location.href,
  title: document.title || "",
  description: (document.querySelector('meta[name="description"]') || {}).content || ""
})`

type pageInfo struct {
	URL         string
	Title       string
	Description string
}

// parsePageInfo decodes the value returned by pageInfoExpr.
func parsePageInfo(value json.RawMessage) (pageInfo, bool) {
	var raw string
	if err := json.Unmarshal(value, &raw); err != nil || !gjson.Valid(raw) {
		return pageInfo{}, false
	}
	r := gjson.Parse(raw)
	info := pageInfo{
		URL:         r.Get("url").String(),
		Title:       r.Get("title").String(),
		Description: r.Get("description").String(),
	}
	return info, info.URL != ""
}

// checkContent classifies the loaded page when it is a video page and
// navigates away when the gate denies it.
func (h *Hook) checkContent(ctx context.Context, rt cdp.Runtime, pg cdp.Page) {
	reply, err := rt.Evaluate(ctx, runtime.NewEvaluateArgs(pageInfoExpr).SetReturnByValue(true))
	if err != nil {
		h.Log.Debug().Err(err).Msg("read page info")
		return
	}
	if reply.ExceptionDetails != nil {
		h.Log.Debug().Str("exception", reply.ExceptionDetails.Text).Msg("read page info")
		return
	}
	info, ok := parsePageInfo(reply.Result.Value)
	if !ok || !isContentURL(info.URL) {
		return
	}

	v, err := h.Gate.Decide(ctx, gate.Destination{
		URL:         info.URL,
		IsTopLevel:  true,
		Title:       info.Title,
		Description: info.Description,
		HasContent:  true,
	})
	if err != nil {
		h.Log.Warn().Err(err).Str("url", info.URL).Msg("gate unavailable, allowing")
		return
	}
	if v.Allowed() || v.RedirectTo == "" {
		h.Log.Debug().Str("url", info.URL).Str("reason", string(v.Reason)).Msg("content allowed")
		return
	}

	h.Log.Info().
		Str("url", info.URL).
		Str("title", info.Title).
		Str("reason", string(v.Reason)).
		Msg("blocked content")
	if _, err := pg.Navigate(ctx, page.NewNavigateArgs(v.RedirectTo)); err != nil {
		h.Log.Warn().Err(err).Msg("navigate to block page")
	}
}
