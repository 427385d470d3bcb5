package gmail

// Record is one ingested message as written to the output table.
type Record struct {
	Subject     string
	From        string
	Date        string // raw Date header
	Body        string
	Attachments []string // saved file paths, in part order
}

// AttachmentRef points at an attachment part of a message. Data is set
// when the part body was returned inline instead of by attachment ID.
type AttachmentRef struct {
	Filename     string
	MimeType     string
	AttachmentID string
	Data         []byte
}

// ParsedMessage holds everything extracted from a full-format message
// before attachments are downloaded.
type ParsedMessage struct {
	ID          string
	Subject     string
	From        string
	Date        string
	Body        string
	Attachments []AttachmentRef
}
