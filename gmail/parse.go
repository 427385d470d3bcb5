package gmail

import (
	"encoding/base64"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"google.golang.org/api/gmail/v1"
)

// HeaderDateLayout matches the leading "Mon, 02 Jan 2006" of an RFC 5322
// Date header. Only the first len(HeaderDateLayout) bytes are parsed.
const HeaderDateLayout = "Mon, 02 Jan 2006"

var stripTagsPolicy = bluemonday.StripTagsPolicy()

// Parse extracts headers, body text and attachment parts from a message
// fetched in full format.
func Parse(msg *gmail.Message) ParsedMessage {
	parsed := ParsedMessage{ID: msg.Id}
	if msg.Payload == nil {
		return parsed
	}
	for _, header := range msg.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "subject":
			parsed.Subject = header.Value
		case "from":
			parsed.From = header.Value
		case "date":
			parsed.Date = header.Value
		}
	}

	var body strings.Builder
	collectBody(msg.Payload, &body)
	parsed.Body = body.String()
	parsed.Attachments = collectAttachments(msg.Payload, nil)
	return parsed
}

// collectBody appends every text part in tree order. HTML parts are reduced
// to their text content.
func collectBody(part *gmail.MessagePart, sb *strings.Builder) {
	if part.Filename == "" && part.Body != nil && part.Body.Data != "" {
		mimeType := strings.ToLower(part.MimeType)
		if mimeType == "" || strings.HasPrefix(mimeType, "text/") {
			data, err := decodeData(part.Body.Data)
			if err == nil {
				if mimeType == "text/html" {
					sb.WriteString(HTMLToText(string(data)))
				} else {
					sb.Write(data)
				}
			}
		}
	}
	for _, child := range part.Parts {
		collectBody(child, sb)
	}
}

func collectAttachments(part *gmail.MessagePart, refs []AttachmentRef) []AttachmentRef {
	if part.Filename != "" && part.Body != nil {
		ref := AttachmentRef{
			Filename:     part.Filename,
			MimeType:     part.MimeType,
			AttachmentID: part.Body.AttachmentId,
		}
		switch {
		case ref.AttachmentID != "":
			refs = append(refs, ref)
		case part.Body.Data != "":
			if data, err := decodeData(part.Body.Data); err == nil {
				ref.Data = data
				refs = append(refs, ref)
			}
		}
	}
	for _, child := range part.Parts {
		refs = collectAttachments(child, refs)
	}
	return refs
}

// HTMLToText strips markup and decodes entities.
func HTMLToText(s string) string {
	return html.UnescapeString(stripTagsPolicy.Sanitize(s))
}

// ParseHeaderDate reads the calendar date from the start of a Date header.
// Headers with a single-digit day or without a weekday do not match.
func ParseHeaderDate(raw string) (time.Time, error) {
	s := raw
	if len(s) > len(HeaderDateLayout) {
		s = s[:len(HeaderDateLayout)]
	}
	t, err := time.Parse(HeaderDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date header %q: %w", raw, err)
	}
	return t, nil
}

// decodeData decodes Gmail's base64url payloads, with or without padding.
func decodeData(s string) ([]byte, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
