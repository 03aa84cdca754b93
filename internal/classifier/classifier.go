package classifier

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/kursadbilgin/promocheck/internal/domain"
	"github.com/kursadbilgin/promocheck/internal/probe"
)

// Reason names why a verdict was reached.
type Reason string

const (
	ReasonMatched     Reason = "matched"
	ReasonNotFound    Reason = "not_found"
	ReasonBlocked     Reason = "blocked"
	ReasonRateLimited Reason = "rate_limited"
	ReasonTransport   Reason = "transport"
	ReasonTimeout     Reason = "timeout"
	ReasonAmbiguous   Reason = "ambiguous"
	ReasonHTTPStatus  Reason = "http_status"
)

func (r Reason) String() string { return string(r) }

const (
	MessageNotFound    = "Code not found - Invalid promo code"
	MessageBlocked     = "Access blocked (403) - Manual verification needed"
	MessageRateLimited = "Rate limited (429) - Try again later"
	MessageAmbiguous   = "Received response but status unclear - Manual check needed"
	MessageTimeout     = "Request timed out - Unable to reach target"
	MessageNetwork     = "Network error - Unable to reach target"
)

// Classification is a verdict plus what the retry controller needs to act on it.
type Classification struct {
	domain.Verdict
	Reason Reason
	// Rule is the phrase rule that matched, if any.
	Rule string
	// Cause is a short label for the failure, used when retries run out.
	Cause    string
	Terminal bool
}

// Classifier turns a probe outcome into a verdict. It holds no mutable state.
type Classifier struct {
	rules []PhraseRule
}

func New(rules []PhraseRule) (*Classifier, error) {
	normalized, err := normalizeRules(rules)
	if err != nil {
		return nil, err
	}
	return &Classifier{rules: normalized}, nil
}

func NewDefault() *Classifier {
	return &Classifier{rules: DefaultPhraseTable()}
}

// Rules returns a copy of the phrase table in match order.
func (c *Classifier) Rules() []PhraseRule {
	return cloneRules(c.rules)
}

func (c *Classifier) Classify(outcome probe.Outcome) Classification {
	if outcome.IsTransportError() {
		if outcome.Timeout {
			return pending(ReasonTimeout, MessageTimeout, "Timeout")
		}
		return pending(ReasonTransport, MessageNetwork, "Network error")
	}

	status := outcome.HTTPStatus
	switch {
	case status == http.StatusNotFound:
		return Classification{
			Verdict:  domain.Verdict{Status: domain.CodeStatusInvalid, Message: MessageNotFound},
			Reason:   ReasonNotFound,
			Cause:    "HTTP 404",
			Terminal: true,
		}
	case status == http.StatusForbidden:
		return pending(ReasonBlocked, MessageBlocked, "HTTP 403")
	case status == http.StatusTooManyRequests:
		return pending(ReasonRateLimited, MessageRateLimited, "HTTP 429")
	case status >= 200 && status < 300:
		return c.classifyBody(outcome.Body)
	default:
		cause := fmt.Sprintf("HTTP %d", status)
		return pending(ReasonHTTPStatus, cause+" - Unable to verify code", cause)
	}
}

func (c *Classifier) classifyBody(body string) Classification {
	lowered := strings.ToLower(body)
	for _, rule := range c.rules {
		for _, phrase := range rule.Phrases {
			if strings.Contains(lowered, phrase) {
				return Classification{
					Verdict:  domain.Verdict{Status: rule.Status, Message: rule.Message},
					Reason:   ReasonMatched,
					Rule:     rule.Name,
					Cause:    rule.Message,
					Terminal: true,
				}
			}
		}
	}
	return pending(ReasonAmbiguous, MessageAmbiguous, "Unclear response")
}

func pending(reason Reason, message, cause string) Classification {
	return Classification{
		Verdict: domain.Verdict{Status: domain.CodeStatusPending, Message: message},
		Reason:  reason,
		Cause:   cause,
	}
}
