package mail

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// buildMIME constructs RFC 5322 message data with a multipart/alternative
// body when both text and HTML are present
func buildMIME(msg *Message, messageID string, now time.Time) []byte {
	var buf bytes.Buffer

	writeHeader(&buf, "From", FormatAddress(msg.FromName, msg.From))
	writeHeader(&buf, "To", msg.To)
	if msg.ReplyTo != "" {
		writeHeader(&buf, "Reply-To", msg.ReplyTo)
	}
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&buf, "Date", now.Format(time.RFC1123Z))
	writeHeader(&buf, "Message-ID", messageID)

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeHeader(&buf, k, msg.Headers[k])
	}

	writeHeader(&buf, "MIME-Version", "1.0")

	switch {
	case msg.HTML != "" && msg.Text != "":
		boundary := uuid.New().String()
		writeHeader(&buf, "Content-Type", fmt.Sprintf("multipart/alternative; boundary=\"%s\"", boundary))
		buf.WriteString("\r\n")

		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		writePart(&buf, "text/plain", msg.Text)
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		writePart(&buf, "text/html", msg.HTML)
		fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	case msg.HTML != "":
		writePart(&buf, "text/html", msg.HTML)
	default:
		writePart(&buf, "text/plain", msg.Text)
	}

	return buf.Bytes()
}

// newMessageID returns a Message-ID in the sender's domain
func newMessageID(from string) string {
	domain := ExtractDomain(from)
	if domain == "" {
		domain = "localhost"
	}
	return fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	value = strings.NewReplacer("\r", "", "\n", "").Replace(value)
	fmt.Fprintf(buf, "%s: %s\r\n", key, value)
}

func writePart(buf *bytes.Buffer, contentType, body string) {
	fmt.Fprintf(buf, "Content-Type: %s; charset=utf-8\r\n", contentType)
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	qp := quotedprintable.NewWriter(buf)
	qp.Write([]byte(body))
	qp.Close()
	buf.WriteString("\r\n")
}
