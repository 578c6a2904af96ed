// Package notify sends the completed-upload announcement mail: a
// multipart message with a plain-text part and an HTML part embedding the
// stream thumbnail inline.
package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"time"

	"github.com/google/uuid"
)

// Notification carries everything the announcement needs.
type Notification struct {
	Channel   string
	Title     string
	Link      string
	Thumbnail []byte
}

// Mailer sends notifications over SMTP without authentication; it is
// meant for a local relay.
type Mailer struct {
	addr string
	from string
	to   string
	send func(addr, from string, to []string, msg []byte) error
}

// NewMailer creates a mailer submitting to the SMTP server at addr.
func NewMailer(addr, from, to string) *Mailer {
	return &Mailer{
		addr: addr,
		from: from,
		to:   to,
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

// Send submits the announcement mail.
func (m *Mailer) Send(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := m.build(n)
	if err != nil {
		return err
	}
	if err := m.send(m.addr, m.from, []string{m.to}, msg); err != nil {
		return fmt.Errorf("send mail via %s: %w", m.addr, err)
	}
	return nil
}

// build renders the full RFC 5322 message bytes.
func (m *Mailer) build(n Notification) ([]byte, error) {
	subject := fmt.Sprintf("[namacap] %s uploaded %s", n.Channel, n.Title)
	messageID := fmt.Sprintf("<%s@namacap>", uuid.NewString())

	var buf bytes.Buffer
	related := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", m.from)
	fmt.Fprintf(&buf, "To: %s\r\n", m.to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/related; boundary=%q\r\n", related.Boundary())
	fmt.Fprintf(&buf, "\r\n")

	cid := uuid.NewString()

	altBuf := &bytes.Buffer{}
	alternative := multipart.NewWriter(altBuf)

	plain, err := alternative.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("build mail: %w", err)
	}
	fmt.Fprintf(plain, "%s uploaded %s\r\n\r\n%s\r\n", n.Channel, n.Title, n.Link)

	htmlPart, err := alternative.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=utf-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("build mail: %w", err)
	}
	imgTag := ""
	if len(n.Thumbnail) > 0 {
		imgTag = fmt.Sprintf(`<p><img src="cid:%s" alt=""></p>`, cid)
	}
	fmt.Fprintf(htmlPart,
		`<html><body><p>%s uploaded <a href="%s">%s</a></p>%s</body></html>`+"\r\n",
		html.EscapeString(n.Channel),
		n.Link,
		html.EscapeString(n.Title),
		imgTag,
	)
	if err := alternative.Close(); err != nil {
		return nil, fmt.Errorf("build mail: %w", err)
	}

	altWrapper, err := related.CreatePart(textproto.MIMEHeader{
		"Content-Type": {fmt.Sprintf("multipart/alternative; boundary=%q", alternative.Boundary())},
	})
	if err != nil {
		return nil, fmt.Errorf("build mail: %w", err)
	}
	if _, err := altWrapper.Write(altBuf.Bytes()); err != nil {
		return nil, fmt.Errorf("build mail: %w", err)
	}

	if len(n.Thumbnail) > 0 {
		img, err := related.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"image/png"},
			"Content-Transfer-Encoding": {"base64"},
			"Content-ID":                {"<" + cid + ">"},
			"Content-Disposition":       {"inline"},
		})
		if err != nil {
			return nil, fmt.Errorf("build mail: %w", err)
		}
		if err := writeBase64(img, n.Thumbnail); err != nil {
			return nil, fmt.Errorf("build mail: %w", err)
		}
	}

	if err := related.Close(); err != nil {
		return nil, fmt.Errorf("build mail: %w", err)
	}
	return buf.Bytes(), nil
}

// writeBase64 writes data base64-encoded in 76-column lines per RFC 2045.
func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := 76
		if n > len(encoded) {
			n = len(encoded)
		}
		if _, err := fmt.Fprintf(w, "%s\r\n", encoded[:n]); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}
