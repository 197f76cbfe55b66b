// Package gate decides whether a navigation may proceed. It combines the
// timer phase, the domain block list and, for single video pages, the
// content classifier.
package gate

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/joescharf/focus/internal/blocklist"
	"github.com/joescharf/focus/internal/classifier"
	"github.com/joescharf/focus/internal/models"
	"github.com/joescharf/focus/internal/store"
)

// FallbackPolicy decides content items the classifier cannot score.
type FallbackPolicy string

const (
	FallbackAllow FallbackPolicy = "allow"
	FallbackDeny  FallbackPolicy = "deny"
)

// ParseFallbackPolicy accepts "allow" or "deny".
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch p := FallbackPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FallbackAllow, FallbackDeny:
		return p, nil
	}
	return "", fmt.Errorf("unknown fallback policy %q (want allow or deny)", s)
}

// DefaultBlockPageURL is served by the daemon's API.
const DefaultBlockPageURL = "http://127.0.0.1:7777/blocked"

// Destination is a navigation about to commit. Title and Description are
// only known once a content page has loaded; HasContent marks that stage.
type Destination struct {
	URL         string
	IsTopLevel  bool
	Title       string
	Description string
	HasContent  bool
}

// Gate evaluates destinations against the persisted state.
type Gate struct {
	store    store.Store
	engine   *classifier.Engine
	fallback FallbackPolicy
	blockURL string
	log      zerolog.Logger

	mu        sync.Mutex
	cached    bool
	lastPhase models.Phase
	lastList  []string
}

// Config holds gate settings.
type Config struct {
	// Engine may be nil; content items then follow Fallback.
	Engine       *classifier.Engine
	Fallback     FallbackPolicy
	BlockPageURL string
	Logger       zerolog.Logger
}

// New creates a gate reading from s.
func New(s store.Store, cfg Config) *Gate {
	if cfg.Fallback == "" {
		cfg.Fallback = FallbackDeny
	}
	if cfg.BlockPageURL == "" {
		cfg.BlockPageURL = DefaultBlockPageURL
	}
	return &Gate{
		store:    s,
		engine:   cfg.Engine,
		fallback: cfg.Fallback,
		blockURL: cfg.BlockPageURL,
		log:      cfg.Logger,
	}
}

// BlockPageURL returns the page denied navigations are sent to.
func (g *Gate) BlockPageURL() string { return g.blockURL }

// snapshot reads the phase and block list. On a store error the last good
// values are used; without any, the error is returned.
func (g *Gate) snapshot(ctx context.Context) (models.Phase, []string, error) {
	v, err := g.store.Get(ctx, store.KeyPhase, store.KeyBlocklist)
	if err == nil {
		var s models.SessionState
		var list []string
		if s, err = store.DecodeState(v); err == nil {
			list, err = store.DecodeBlocklist(v[store.KeyBlocklist])
		}
		if err == nil {
			g.mu.Lock()
			g.cached, g.lastPhase, g.lastList = true, s.Phase, list
			g.mu.Unlock()
			return s.Phase, list, nil
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.cached {
		return "", nil, fmt.Errorf("read gate state: %w", err)
	}
	g.log.Warn().Err(err).Msg("using last known gate state")
	return g.lastPhase, g.lastList, nil
}

// Decide returns the verdict for d. The only error is a store failure before
// any state was ever read.
func (g *Gate) Decide(ctx context.Context, d Destination) (models.Verdict, error) {
	phase, list, err := g.snapshot(ctx)
	if err != nil {
		return models.Verdict{}, err
	}
	v := g.decide(phase, list, d)
	g.log.Debug().
		Str("url", d.URL).
		Str("action", string(v.Action)).
		Str("reason", string(v.Reason)).
		Msg("decide")
	return v, nil
}

func (g *Gate) decide(phase models.Phase, list []string, d Destination) models.Verdict {
	if phase != models.PhaseRunning {
		return allow(models.ReasonNotEnforced, string(phase))
	}
	if g.isBlockPage(d.URL) {
		return allow(models.ReasonInternalDestination, "")
	}

	u, err := url.Parse(strings.TrimSpace(d.URL))
	if err != nil {
		return allow(models.ReasonMalformedURL, err.Error())
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return allow(models.ReasonMalformedURL, "missing scheme")
	default:
		return allow(models.ReasonInternalDestination, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return allow(models.ReasonMalformedURL, "missing host")
	}

	if !d.IsTopLevel {
		return allow(models.ReasonSubframe, "")
	}
	if blocklist.IsBlocked(host, list) {
		return g.deny(d.URL, models.ReasonDomainBlocked, host)
	}

	if _, ok := ContentID(u); ok {
		return g.decideContent(d)
	}
	return allow(models.ReasonAllowed, "")
}

func (g *Gate) decideContent(d Destination) models.Verdict {
	if !d.HasContent {
		return allow(models.ReasonContentPending, "")
	}
	title := CleanTitle(d.Title)
	if title == "" {
		return g.deny(d.URL, models.ReasonMissingTitle, "")
	}

	r := g.engine.Predict(title, d.Description)
	if r.Fallback {
		if g.fallback == FallbackAllow {
			return allow(models.ReasonClassifierFallback, "policy allow")
		}
		return g.deny(d.URL, models.ReasonClassifierFallback, "policy deny")
	}

	detail := fmt.Sprintf("score %.3f", r.Score)
	if r.Label == classifier.LabelAllow {
		return allow(models.ReasonContentAllowed, detail)
	}
	return g.deny(d.URL, models.ReasonContentDenied, detail)
}

func (g *Gate) isBlockPage(raw string) bool {
	return raw == g.blockURL || strings.HasPrefix(raw, g.blockURL+"?")
}

func allow(r models.Reason, detail string) models.Verdict {
	return models.Verdict{Action: models.ActionAllow, Reason: r, Detail: detail}
}

func (g *Gate) deny(target string, r models.Reason, detail string) models.Verdict {
	return models.Verdict{
		Action:     models.ActionDeny,
		Reason:     r,
		Detail:     detail,
		RedirectTo: g.RedirectURL(target, r),
	}
}

// RedirectURL builds the block page link for a denied target.
func (g *Gate) RedirectURL(target string, r models.Reason) string {
	q := url.Values{}
	q.Set("url", target)
	q.Set("reason", string(r))
	sep := "?"
	if strings.Contains(g.blockURL, "?") {
		sep = "&"
	}
	return g.blockURL + sep + q.Encode()
}
