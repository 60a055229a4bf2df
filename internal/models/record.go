package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/google/uuid"
)

// Record is one message together with its attachments and status. It is the
// unit written by createMessage and moved by the migrator.
type Record struct {
	Message Message
	Files   []FileReference
	Status  *MessageStatus

	// Problems lists values of this record that could not be decoded from
	// its message file. A record with problems never validates.
	Problems []string
}

// Validate reports every missing or inconsistent required field. The returned
// error matches common.ErrInvalidRecord.
func (r *Record) Validate() error {
	var errs []error
	m := &r.Message

	if m.MessageID == "" {
		errs = append(errs, errors.New("message_id is required"))
	}
	if m.DepositionID == "" {
		errs = append(errs, errors.New("deposition_id is required"))
	}
	if m.Timestamp.IsZero() {
		errs = append(errs, errors.New("timestamp is required"))
	}
	if m.Sender == "" {
		errs = append(errs, errors.New("sender is required"))
	}
	if !m.ContentType.Valid() {
		errs = append(errs, fmt.Errorf("content_type %q is invalid", m.ContentType))
	}

	for i := range r.Files {
		f := &r.Files[i]
		if f.MessageID != m.MessageID {
			errs = append(errs, fmt.Errorf("file reference %d belongs to message %q", i, f.MessageID))
		}
		if f.ContentType == "" || f.ContentFormat == "" {
			errs = append(errs, fmt.Errorf("file reference %d: content_type and content_format are required", i))
		}
	}

	for _, p := range r.Problems {
		errs = append(errs, fmt.Errorf("undecodable value: %s", p))
	}

	if r.Status != nil && r.Status.MessageID != m.MessageID {
		errs = append(errs, fmt.Errorf("status belongs to message %q", r.Status.MessageID))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", common.ErrInvalidRecord, errors.Join(errs...))
}

// Prepare fills the fields a brand-new message gets at creation time: a
// fresh id, a UTC timestamp at second precision, thread-root parentage, the default message type
// and a status row. Ids are then propagated into attachments and status.
func (r *Record) Prepare(now time.Time) {
	m := &r.Message
	if m.MessageID == "" {
		m.MessageID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	m.Timestamp = m.Timestamp.UTC().Truncate(time.Second)
	if m.ParentMessageID == "" {
		m.ParentMessageID = m.MessageID
	}
	if m.MessageType == "" {
		m.MessageType = DefaultMessageType
	}
	if r.Status == nil {
		r.Status = &MessageStatus{}
	}
	r.Normalize()
}

// Normalize copies the message and deposition ids into attachments and status
// and fills attachment defaults.
func (r *Record) Normalize() {
	m := &r.Message
	for i := range r.Files {
		f := &r.Files[i]
		if f.MessageID == "" {
			f.MessageID = m.MessageID
		}
		if f.DepositionID == "" {
			f.DepositionID = m.DepositionID
		}
		if f.StorageType == "" {
			f.StorageType = DefaultStorageType
		}
	}
	if r.Status != nil {
		if r.Status.MessageID == "" {
			r.Status.MessageID = m.MessageID
		}
		if r.Status.DepositionID == "" {
			r.Status.DepositionID = m.DepositionID
		}
	}
}
