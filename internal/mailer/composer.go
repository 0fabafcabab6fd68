package mailer

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spgotland/snapkiosk/internal/analytics"
	"github.com/spgotland/snapkiosk/internal/policy"
	"github.com/spgotland/snapkiosk/internal/reliability"
)

// Contact is the recipient information entered at the kiosk.
type Contact struct {
	Email        string
	Name         string
	Company      string
	Message      string
	ConsentGiven bool
}

// Metadata correlates the delivery with the flow that produced it.
type Metadata struct {
	SessionID   string
	Instruction string
}

// Attachment is the inline image payload of the outbound message.
type Attachment struct {
	Filename string
	MIMEType string
	Content  []byte
}

// OutboundMessage is the one-shot email handed to the Sender. It is the only
// place the image travels; nothing derived from it reaches durable storage.
type OutboundMessage struct {
	From       string
	To         string
	Subject    string
	HTML       string
	Attachment *Attachment
}

const (
	defaultName    = "Someone"
	defaultMessage = "Check out this amazing photo transformation!"
)

// Composer builds the outbound message and the matching analytics record.
type Composer struct {
	from   string
	client *http.Client
}

func NewComposer(from string) *Composer {
	return &Composer{
		from: from,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Compose builds the email for the given image and, alongside it, the
// analytics record. The record is produced here so the separation holds by
// construction: its fields come only from contact and metadata text, each
// scrubbed of any smuggled image reference, and the Record type itself has no
// image slot.
func (c *Composer) Compose(ctx context.Context, contact Contact, imageURL string, meta Metadata) (OutboundMessage, analytics.Record, error) {
	name := strings.TrimSpace(contact.Name)
	if name == "" {
		name = defaultName
	}
	note := strings.TrimSpace(contact.Message)
	if note == "" {
		note = defaultMessage
	}

	att, err := c.resolveAttachment(ctx, imageURL)
	if err != nil {
		return OutboundMessage{}, analytics.Record{}, err
	}

	msg := OutboundMessage{
		From:       c.from,
		To:         contact.Email,
		Subject:    fmt.Sprintf("🎉 %s sent you an amazing photo transformation!", name),
		HTML:       renderBody(name, note, meta.Instruction),
		Attachment: att,
	}

	record := analytics.Record{
		SessionID:    meta.SessionID,
		Email:        contact.Email,
		Name:         scrub(contact.Name),
		Company:      scrub(contact.Company),
		ConsentGiven: contact.ConsentGiven,
		Instruction:  scrub(meta.Instruction),
	}

	return msg, record, nil
}

// resolveAttachment turns the received image form into inline binary content:
// data URLs are decoded, http(s) URLs fetched and wrapped.
func (c *Composer) resolveAttachment(ctx context.Context, imageURL string) (*Attachment, error) {
	if strings.HasPrefix(imageURL, "data:image/") {
		return decodeDataURL(imageURL)
	}
	return c.fetchRemote(ctx, imageURL)
}

func decodeDataURL(dataURL string) (*Attachment, error) {
	header, b64, ok := strings.Cut(dataURL, ",")
	if !ok {
		return nil, fmt.Errorf("malformed image data URL")
	}
	mimeType := "image/jpeg"
	if rest, found := strings.CutPrefix(header, "data:"); found {
		if m, _, cut := strings.Cut(rest, ";"); cut && m != "" {
			mimeType = m
		}
	}
	content, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode image data URL: %w", err)
	}
	return &Attachment{
		Filename: "transformed-photo." + extensionFor(mimeType),
		MIMEType: mimeType,
		Content:  content,
	}, nil
}

func (c *Composer) fetchRemote(ctx context.Context, imageURL string) (*Attachment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create image fetch request: %w", err)
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch image: %v", reliability.ErrUpstreamUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: image fetch status %d", reliability.ErrUpstreamUnavailable, res.StatusCode)
	}

	content, err := io.ReadAll(io.LimitReader(res.Body, 20<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read image: %v", reliability.ErrUpstreamUnavailable, err)
	}

	mimeType := res.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/jpeg"
	}
	return &Attachment{
		Filename: "transformed-photo." + extensionFor(mimeType),
		MIMEType: mimeType,
		Content:  content,
	}, nil
}

func renderBody(name, note, instruction string) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">`)
	b.WriteString(`<h1>✨ Photo Transformation Magic! ✨</h1>`)
	fmt.Fprintf(&b, `<p>From %s</p>`, html.EscapeString(name))
	fmt.Fprintf(&b, `<blockquote>%s</blockquote>`, html.EscapeString(note))
	if strings.TrimSpace(instruction) != "" {
		fmt.Fprintf(&b, `<p>Transformation: %s</p>`, html.EscapeString(instruction))
	}
	b.WriteString(`<p>Your transformed photo is attached.</p>`)
	b.WriteString(`<hr><p style="font-size: 12px; color: #6b7280;">This photo was created with Snap &amp; Transform, an AI-powered photo kiosk that turns ordinary photos into extraordinary art.</p>`)
	b.WriteString(`</div>`)
	return b.String()
}

func extensionFor(mimeType string) string {
	if _, ext, ok := strings.Cut(mimeType, "/"); ok && ext != "" {
		return ext
	}
	return "jpg"
}

func scrub(input string) string {
	out, _ := policy.ScrubImageRefs(input)
	return out
}
