package detectors

import (
	"context"
	"fmt"

	"github.com/mikey/threat-scorer/internal/core"
	"github.com/mikey/threat-scorer/internal/extract"
	"go.uber.org/zap"
)

// ReplyToDetector flags messages whose replies go to a different domain
type ReplyToDetector struct {
	weight int
	logger *zap.Logger
}

// NewReplyToDetector creates a new Reply-To mismatch detector
func NewReplyToDetector(weights core.Weights, logger *zap.Logger) *ReplyToDetector {
	return &ReplyToDetector{
		weight: weights.Of(core.SignalReplyTo),
		logger: loggerOrNop(logger),
	}
}

// Key implements core.Signal
func (d *ReplyToDetector) Key() core.SignalKey { return core.SignalReplyTo }

// Remote implements core.Signal
func (d *ReplyToDetector) Remote() bool { return false }

// Evaluate implements core.Signal
func (d *ReplyToDetector) Evaluate(_ context.Context, req *core.SignalRequest) (core.SignalResult, error) {
	rec := req.Record
	if rec == nil {
		return core.NoSignal, nil
	}

	value := extract.HeaderValue(rec.RawHeaderBlock, "Reply-To")
	if value == "" {
		return core.NoSignal, nil
	}
	senderDomain := rec.Domain()
	if senderDomain == "" {
		return core.NoSignal, nil
	}

	// Any one foreign address in the list is enough.
	var replyDomain string
	for _, replyTo := range extract.ParseAddressList(value) {
		if domain := core.DomainOf(replyTo); domain != "" && domain != senderDomain {
			replyDomain = domain
			break
		}
	}
	if replyDomain == "" {
		return core.NoSignal, nil
	}

	d.logger.Debug("Reply-To domain differs from sender",
		zap.String("sender_domain", senderDomain),
		zap.String("reply_to_domain", replyDomain))
	details := fmt.Sprintf("Replies go to %s, not to the sender's domain %s", replyDomain, senderDomain)
	return full(core.SignalReplyTo, d.weight, details), nil
}
