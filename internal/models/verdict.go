package models

// Action is the enforcement outcome for a navigation.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

// Reason explains a verdict for logs and the block page.
type Reason string

const (
	ReasonNotEnforced         Reason = "not_enforced"
	ReasonInternalDestination Reason = "internal_destination"
	ReasonMalformedURL        Reason = "malformed_url"
	ReasonSubframe            Reason = "subframe"
	ReasonDomainBlocked       Reason = "domain_blocked"
	ReasonContentPending      Reason = "content_pending"
	ReasonMissingTitle        Reason = "missing_title"
	ReasonContentAllowed      Reason = "content_allowed"
	ReasonContentDenied       Reason = "content_denied"
	ReasonClassifierFallback  Reason = "classifier_fallback"
	ReasonAllowed             Reason = "allowed"
)

// Verdict is the gate's decision plus a reason code.
type Verdict struct {
	Action     Action `json:"action"`
	Reason     Reason `json:"reason"`
	Detail     string `json:"detail,omitempty"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// Allowed reports whether the navigation may proceed.
func (v Verdict) Allowed() bool { return v.Action == ActionAllow }
