package models

import (
	"fmt"
	"time"
)

// ContentType is the message category. It also selects the document file the
// message is stored in.
type ContentType string

const (
	ContentToDepositor   ContentType = "messages-to-depositor"
	ContentFromDepositor ContentType = "messages-from-depositor"
	ContentNotes         ContentType = "notes-from-annotator"
)

// ContentTypes lists every category in file order.
var ContentTypes = []ContentType{ContentToDepositor, ContentFromDepositor, ContentNotes}

func (c ContentType) Valid() bool {
	switch c {
	case ContentToDepositor, ContentFromDepositor, ContentNotes:
		return true
	}
	return false
}

func ParseContentType(s string) (ContentType, error) {
	c := ContentType(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown content type %q", s)
	}
	return c, nil
}

// DefaultMessageType is used when a message carries no explicit type.
const DefaultMessageType = "text"

// Message is a single unit of correspondence within a deposition.
// OrdinalID is backend-assigned insertion order and is not part of identity.
type Message struct {
	OrdinalID       int64
	MessageID       string
	DepositionID    string
	Timestamp       time.Time
	Sender          string
	ContextType     string
	ContextValue    string
	ParentMessageID string
	Subject         string
	Body            string
	MessageType     string
	ContentType     ContentType
	SendStatus      bool
}

// IsThreadRoot reports whether the message starts its own thread.
func (m *Message) IsThreadRoot() bool {
	return m.ParentMessageID == "" || m.ParentMessageID == m.MessageID
}

type FileReference struct {
	OrdinalID        int64
	MessageID        string
	DepositionID     string
	ContentType      string
	ContentFormat    string
	PartitionNumber  int
	VersionID        int
	StorageType      string
	OriginalFilename string
}

// FileKey is the uniqueness tuple of a file reference.
type FileKey struct {
	MessageID       string
	ContentType     string
	VersionID       int
	PartitionNumber int
}

func (f *FileReference) Key() FileKey {
	return FileKey{
		MessageID:       f.MessageID,
		ContentType:     f.ContentType,
		VersionID:       f.VersionID,
		PartitionNumber: f.PartitionNumber,
	}
}

// DefaultStorageType is the storage tier recorded for attachments.
const DefaultStorageType = "archive"

// MessageStatus is the only mutable part of a record.
type MessageStatus struct {
	MessageID      string
	DepositionID   string
	ReadStatus     bool
	ActionRequired bool
	ForRelease     bool
}
