package filter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/threat-scorer/internal/core"
	"github.com/mikey/threat-scorer/internal/ports"
	"go.uber.org/zap"
)

// maxReasonsLength bounds the reasons header so it stays a sane single line
const maxReasonsLength = 900

const errorHeader = "X-Threat-Analysis-Error"

// HeaderNames are the header fields written into filtered mail
type HeaderNames struct {
	Score   string
	Verdict string
	Reasons string
}

// PostfixOptions configures a PostfixFilter
type PostfixOptions struct {
	ListenAddress   string
	RejectMalicious bool
	MaxMessageBytes int64
	Headers         HeaderNames
	PostfixAddress  string
	PostfixPort     int
	AnalysisTimeout time.Duration
}

// PostfixFilter implements a Postfix content filter: it receives mail over
// SMTP, annotates it with the analysis and re-injects it into Postfix.
type PostfixFilter struct {
	analyzer ports.Analyzer
	actions  ports.ActionRecorder
	logger   *zap.Logger
	opts     PostfixOptions
	server   *smtp.Server

	// deliver hands the annotated message back to Postfix
	deliver func(sender string, recipients []string, data []byte) error
}

// NewPostfixFilter creates a new Postfix content filter
func NewPostfixFilter(analyzer ports.Analyzer, actions ports.ActionRecorder, logger *zap.Logger, opts PostfixOptions) *PostfixFilter {
	if opts.Headers.Score == "" {
		opts.Headers.Score = "X-Threat-Score"
	}
	if opts.Headers.Verdict == "" {
		opts.Headers.Verdict = "X-Threat-Verdict"
	}
	if opts.Headers.Reasons == "" {
		opts.Headers.Reasons = "X-Threat-Reasons"
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 30 * 1024 * 1024
	}
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = 30 * time.Second
	}

	f := &PostfixFilter{
		analyzer: analyzer,
		actions:  actions,
		logger:   logger.Named("postfix"),
		opts:     opts,
	}
	f.deliver = f.sendToPostfix
	return f
}

// Start starts the Postfix filter service
func (f *PostfixFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})

	f.server.Addr = f.opts.ListenAddress
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = f.opts.MaxMessageBytes
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	f.logger.Info("Postfix filter starting", zap.String("address", f.opts.ListenAddress))

	go func() {
		if err := f.server.ListenAndServe(); err != nil && err != smtp.ErrServerClosed {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the Postfix filter service
func (f *PostfixFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessMessage analyzes a raw message without delivering it
func (f *PostfixFilter) ProcessMessage(ctx context.Context, raw []byte) (*core.Analysis, error) {
	return f.analyzer.Process(ctx, raw)
}

func (f *PostfixFilter) recordAction(action string) {
	if f.actions != nil {
		f.actions.FilterAction(action)
	}
}

// annotate prepends the threat headers to the original message. Inbound
// fields with the same names are dropped so a sender cannot forge them.
func (f *PostfixFilter) annotate(raw []byte, analysis *core.Analysis, analysisErr error) []byte {
	raw = stripHeaders(raw, f.opts.Headers.Score, f.opts.Headers.Verdict, f.opts.Headers.Reasons, errorHeader)

	var buf bytes.Buffer
	buf.Grow(len(raw) + 256)

	fmt.Fprintf(&buf, "%s: %d\r\n", f.opts.Headers.Score, analysis.Score)
	fmt.Fprintf(&buf, "%s: %s\r\n", f.opts.Headers.Verdict, analysis.Verdict)
	if reasons := FormatReasons(analysis.Explanations); reasons != "" {
		fmt.Fprintf(&buf, "%s: %s\r\n", f.opts.Headers.Reasons, reasons)
	}
	if analysisErr != nil {
		fmt.Fprintf(&buf, "%s: %s\r\n", errorHeader, headerSafe(analysisErr.Error()))
	}
	buf.Write(raw)
	return buf.Bytes()
}

// stripHeaders removes the named fields, continuation lines included, from the
// header block of raw. The body is left untouched.
func stripHeaders(raw []byte, names ...string) []byte {
	end := headerBlockEnd(raw)
	header, body := raw[:end], raw[end:]

	var out bytes.Buffer
	out.Grow(len(raw))
	dropping := false
	for len(header) > 0 {
		line := header
		if i := bytes.IndexByte(header, '\n'); i >= 0 {
			line = header[:i+1]
		}
		header = header[len(line):]

		if line[0] != ' ' && line[0] != '\t' {
			dropping = headerNameIn(line, names)
		}
		if !dropping {
			out.Write(line)
		}
	}
	out.Write(body)
	return out.Bytes()
}

// headerBlockEnd returns the offset of the blank line separating headers from
// the body, or len(raw) when there is none.
func headerBlockEnd(raw []byte) int {
	if bytes.HasPrefix(raw, []byte("\r\n")) || bytes.HasPrefix(raw, []byte("\n")) {
		return 0
	}
	end := len(raw)
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		end = i + 2
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 && i+1 < end {
		end = i + 1
	}
	return end
}

func headerNameIn(line []byte, names []string) bool {
	colon := bytes.IndexByte(line, ':')
	if colon < 0 {
		return false
	}
	name := strings.TrimSpace(string(line[:colon]))
	for _, n := range names {
		if strings.EqualFold(name, n) {
			return true
		}
	}
	return false
}

// FormatReasons renders the explanation trail as one header-safe line
func FormatReasons(explanations []core.Explanation) string {
	parts := make([]string, 0, len(explanations))
	for _, e := range explanations {
		parts = append(parts, fmt.Sprintf("%s(+%d): %s", e.Signal, e.Weight, headerSafe(e.Details)))
	}
	reasons := strings.Join(parts, "; ")
	if len(reasons) > maxReasonsLength {
		cut := maxReasonsLength
		for cut > 0 && !isRuneStart(reasons[cut]) {
			cut--
		}
		reasons = reasons[:cut] + "..."
	}
	return reasons
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// headerSafe folds a value onto a single line
func headerSafe(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// sendToPostfix sends the processed email back to Postfix on the configured port using go-smtp
func (f *PostfixFilter) sendToPostfix(sender string, recipients []string, emailData []byte) error {
	postfixAddr := net.JoinHostPort(f.opts.PostfixAddress, fmt.Sprint(f.opts.PostfixPort))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", postfixAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to Postfix: %w", err)
	}

	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
			continue
		}
		recipientOK = true
	}
	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(emailData); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	// the message is already queued at this point
	if err := c.Quit(); err != nil {
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}

	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *PostfixFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{
		filter:     b.filter,
		recipients: make([]string, 0),
	}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *PostfixFilter
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = make([]string, 0)
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data analyzes the message and either rejects it or passes it on annotated
func (s *smtpSession) Data(r io.Reader) error {
	f := s.filter

	raw, err := io.ReadAll(r)
	if err != nil {
		f.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.opts.AnalysisTimeout)
	defer cancel()

	analysis, analysisErr := f.analyzer.Process(ctx, raw)
	if analysis == nil {
		analysis = core.EmptyAnalysis()
	}
	if analysisErr != nil {
		f.logger.Error("Failed to analyze email, passing it through",
			zap.String("envelope_from", s.sender),
			zap.Error(analysisErr))
	}

	if analysis.Verdict == core.VerdictMalicious && f.opts.RejectMalicious && analysisErr == nil {
		f.logger.Info("Rejecting malicious email",
			zap.String("id", analysis.ID),
			zap.String("envelope_from", s.sender),
			zap.String("sender_domain", analysis.Domain),
			zap.Int("score", analysis.Score))
		f.recordAction("rejected")
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      fmt.Sprintf("Rejected as malicious (score: %d)", analysis.Score),
		}
	}

	if err := f.deliver(s.sender, s.recipients, f.annotate(raw, analysis, analysisErr)); err != nil {
		f.logger.Error("Failed to send email back to Postfix",
			zap.String("envelope_from", s.sender),
			zap.Error(err))
		f.recordAction("failed")
		return err
	}

	f.recordAction("accepted")
	f.logger.Info("Processed email",
		zap.String("id", analysis.ID),
		zap.String("envelope_from", s.sender),
		zap.String("sender_domain", analysis.Domain),
		zap.Int("score", analysis.Score),
		zap.String("verdict", string(analysis.Verdict)))

	return nil
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}
