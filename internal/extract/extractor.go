// Package extract turns raw RFC 5322 messages into core.FeatureRecord values.
package extract

import (
	"bytes"
	"errors"
	"mime"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/mikey/threat-scorer/internal/core"
	"go.uber.org/zap"
)

// ErrEmptyMessage is returned for an input with no content at all
var ErrEmptyMessage = errors.New("empty message")

// Extractor builds feature records from raw messages
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates a new extractor
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract parses raw into a feature record. When the MIME structure cannot
// be parsed it falls back to a plain header/body split and returns the
// degraded record together with the parse error.
func (e *Extractor) Extract(raw []byte) (*core.FeatureRecord, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyMessage
	}

	headerBlock, rawBody := SplitMessage(string(raw))

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		e.logger.Debug("MIME parsing failed, using plain split", zap.Error(err))
		return e.fallback(headerBlock, rawBody), err
	}
	for _, perr := range env.Errors {
		e.logger.Debug("MIME part problem", zap.String("error", perr.Error()))
	}

	email, name := ParseAddress(env.GetHeader("From"))
	body := env.Text
	if body == "" && env.HTML == "" && !hasParts(env) {
		body = rawBody
	}

	urls := ExtractURLs(body)
	if env.HTML != "" {
		anchors, err := anchorURLs(env.HTML)
		if err != nil {
			e.logger.Debug("Failed to parse HTML part", zap.Error(err))
		}
		urls = appendUnseen(urls, anchors)
	}

	record := &core.FeatureRecord{
		SenderEmail:       email,
		SenderDisplayName: name,
		Subject:           env.GetHeader("Subject"),
		BodyText:          body,
		RawHeaderBlock:    headerBlock,
		URLs:              urls,
	}
	if ip, ok := OriginatingIP(headerBlock); ok {
		record.OriginatingIP = ip
	}

	e.logger.Debug("Extracted features",
		zap.String("sender", record.SenderEmail),
		zap.Int("urls", len(record.URLs)),
		zap.Bool("originating_ip", record.HasOriginatingIP()))

	return record, nil
}

// hasParts reports whether the envelope carries non-text MIME parts. Their
// raw encoding must not be scored as body text.
func hasParts(env *enmime.Envelope) bool {
	return len(env.Attachments) > 0 || len(env.Inlines) > 0 || len(env.OtherParts) > 0
}

// fallback builds the best record available from an unparseable message
func (e *Extractor) fallback(headerBlock, body string) *core.FeatureRecord {
	email, name := ParseAddress(decodeHeader(HeaderValue(headerBlock, "From")))
	record := &core.FeatureRecord{
		SenderEmail:       email,
		SenderDisplayName: name,
		Subject:           decodeHeader(HeaderValue(headerBlock, "Subject")),
		BodyText:          body,
		RawHeaderBlock:    headerBlock,
		URLs:              ExtractURLs(body),
	}
	if ip, ok := OriginatingIP(headerBlock); ok {
		record.OriginatingIP = ip
	}
	return record
}

// decodeHeader decodes RFC 2047 encoded words, returning value unchanged on failure
func decodeHeader(value string) string {
	if !strings.Contains(value, "=?") {
		return value
	}
	decoder := &mime.WordDecoder{}
	decoded, err := decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
