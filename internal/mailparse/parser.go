package mailparse

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"smartmailbox/internal/models"
)

// supportedExtensions lists the file types accepted for ingestion.
var supportedExtensions = map[string]bool{
	".eml": true,
	".msg": true,
}

// ParseFile parses a single message file into a Message record. It reads
// the source file and writes nothing.
func ParseFile(path string) (*models.Message, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return nil, &ParseError{Kind: KindUnsupportedFormat, Path: path,
			Err: fmt.Errorf("unsupported extension %q", ext)}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Kind: KindUnreadableFile, Path: path, Err: err}
	}

	return Parse(raw, path)
}

// Parse parses raw message bytes. The path is recorded as provenance and
// used in error reporting.
func Parse(raw []byte, path string) (*models.Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, &ParseError{Kind: KindMalformedStructure, Path: path, Err: err}
	}

	header := msg.Header
	now := time.Now().UTC()

	sum := sha256.Sum256(raw)
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	m := &models.Message{
		Subject:      decodeHeader(header.Get("Subject")),
		DateReceived: now,
		FilePath:     absPath,
		FileSize:     int64(len(raw)),
		FileHash:     hex.EncodeToString(sum[:]),
		Tags:         []string{},
	}
	if m.Subject == "" {
		m.Subject = "(no subject)"
	}

	m.Sender, m.SenderName = parseAddress(header.Get("From"))
	m.Recipient, m.RecipientName = parseAddress(header.Get("To"))

	// Sent time falls back to ingest time rather than failing.
	if date, err := header.Date(); err == nil {
		m.DateSent = date.UTC()
	} else {
		m.DateSent = now
	}

	text, html, attachments := extractContent(
		header.Get("Content-Type"),
		header.Get("Content-Transfer-Encoding"),
		msg.Body,
	)
	m.BodyText = text
	m.BodyHTML = html
	m.Attachments = attachments
	m.AttachmentCount = len(attachments)
	m.HasAttachments = len(attachments) > 0

	return m, nil
}

// parseAddress extracts the address and optional display name from an
// address header, falling back to the raw header value and finally to the
// unknown sentinel.
func parseAddress(header string) (address, name string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return models.UnknownAddress, ""
	}
	addr, err := mail.ParseAddress(header)
	if err != nil {
		return decodeHeader(header), ""
	}
	return addr.Address, decodeHeader(addr.Name)
}

// extractContent walks the MIME structure and returns the first plain-text
// body, the first HTML body, and attachment descriptors. Attachment bytes
// are counted, not kept.
func extractContent(contentType, transferEncoding string, body io.Reader) (string, string, []models.Attachment) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || contentType == "" {
		// No usable content type: treat the whole body as plain text.
		return readPartText(body, transferEncoding, ""), "", nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return extractMultipart(body, params["boundary"])
	}

	content := readPartText(body, transferEncoding, params["charset"])
	if mediaType == "text/html" {
		return "", content, nil
	}
	return content, "", nil
}

// extractMultipart walks one multipart level, recursing into nested
// multiparts. The first text/plain and first text/html parts win.
func extractMultipart(body io.Reader, boundary string) (string, string, []models.Attachment) {
	var text, html string
	var attachments []models.Attachment

	if boundary == "" {
		return "", "", nil
	}

	mr := multipart.NewReader(body, boundary)
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}

		partType, partParams, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		encoding := part.Header.Get("Content-Transfer-Encoding")
		disposition, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))

		if disposition == "attachment" || part.FileName() != "" {
			attachments = append(attachments, models.Attachment{
				Filename:    decodeHeader(part.FileName()),
				ContentType: partType,
				Size:        partSize(part, encoding),
			})
			continue
		}

		switch {
		case strings.HasPrefix(partType, "multipart/"):
			nestedText, nestedHTML, nested := extractMultipart(part, partParams["boundary"])
			if text == "" {
				text = nestedText
			}
			if html == "" {
				html = nestedHTML
			}
			attachments = append(attachments, nested...)
		case partType == "text/plain" && text == "":
			text = readPartText(part, encoding, partParams["charset"])
		case partType == "text/html" && html == "":
			html = readPartText(part, encoding, partParams["charset"])
		}
	}

	return text, html, attachments
}

// readPartText applies the transfer encoding and charset of one part and
// returns its decoded text content.
func readPartText(r io.Reader, transferEncoding, charset string) string {
	raw, err := io.ReadAll(decodeTransfer(r, transferEncoding))
	if err != nil || len(raw) == 0 {
		return ""
	}
	return strings.TrimRight(decodeText(raw, charset), "\n")
}

// partSize counts the decoded bytes of an attachment part.
func partSize(r io.Reader, transferEncoding string) int64 {
	n, err := io.Copy(io.Discard, decodeTransfer(r, transferEncoding))
	if err != nil {
		return 0
	}
	return n
}

// decodeTransfer wraps the reader according to Content-Transfer-Encoding.
func decodeTransfer(r io.Reader, transferEncoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	default:
		return r
	}
}

// LooksLikeMessage samples the head of a file and reports whether it
// resembles an RFC 5322 message. Used by callers to reject obvious
// non-mail files before running the pipeline.
func LooksLikeMessage(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	sample := make([]byte, 1024)
	n, _ := f.Read(sample)
	head := string(sample[:n])

	headers := []string{"From:", "To:", "Subject:", "Date:", "Message-ID:"}
	found := 0
	for _, h := range headers {
		if strings.Contains(head, h) {
			found++
		}
	}
	return found >= 2
}
