package docstore

import (
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/depmsg/internal/docstore/cif"
	"github.com/dmitrijs2005/depmsg/internal/models"
)

// Category names used inside message files.
const (
	CategoryInfo   = "pdbx_deposition_message_info"
	CategoryFiles  = "pdbx_deposition_message_file_reference"
	CategoryStatus = "pdbx_deposition_message_status"

	blockName = "messages"
)

var (
	infoColumns = []string{
		"ordinal_id", "message_id", "deposition_data_set_id", "timestamp", "sender",
		"context_type", "context_value", "parent_message_id", "message_subject",
		"message_text", "message_type", "send_status",
	}
	fileColumns = []string{
		"ordinal_id", "message_id", "deposition_data_set_id", "content_type",
		"content_format", "partition_number", "version_id", "storage_type", "upload_file_name",
	}
	statusColumns = []string{
		"message_id", "deposition_data_set_id", "read_status", "action_reqd", "for_release",
	}
)

// Document is one rendered message file.
type Document struct {
	DepositionID string
	ContentType  models.ContentType
	Version      int
	Key          string
	CIF          *cif.Document
}

func ordinal(v int64, pos int) string {
	if v == 0 {
		v = int64(pos + 1)
	}
	return strconv.FormatInt(v, 10)
}

// Encode renders records of a single content type. Records keep their order.
func Encode(records []*models.Record) *cif.Document {
	doc := cif.NewDocument(blockName)
	info := doc.AddTable(CategoryInfo, infoColumns...)
	files := doc.AddTable(CategoryFiles, fileColumns...)
	status := doc.AddTable(CategoryStatus, statusColumns...)

	fpos := 0
	for i, r := range records {
		m := &r.Message
		info.AddRow(
			ordinal(m.OrdinalID, i),
			m.MessageID,
			m.DepositionID,
			models.FormatTimestamp(m.Timestamp),
			m.Sender,
			m.ContextType,
			m.ContextValue,
			m.ParentMessageID,
			m.Subject,
			m.Body,
			m.MessageType,
			models.FormatFlag(m.SendStatus),
		)
		for _, f := range r.Files {
			files.AddRow(
				ordinal(f.OrdinalID, fpos),
				f.MessageID,
				f.DepositionID,
				f.ContentType,
				f.ContentFormat,
				strconv.Itoa(f.PartitionNumber),
				strconv.Itoa(f.VersionID),
				f.StorageType,
				f.OriginalFilename,
			)
			fpos++
		}
		if s := r.Status; s != nil {
			status.AddRow(
				s.MessageID,
				s.DepositionID,
				models.FormatFlag(s.ReadStatus),
				models.FormatFlag(s.ActionRequired),
				models.FormatFlag(s.ForRelease),
			)
		}
	}
	return doc
}

// Problem describes a value that could not be decoded. The affected field is
// left at its zero value and the problem is attached to the record, which
// then fails validation.
type Problem struct {
	MessageID string
	Category  string
	Column    string
	Value     string
	Err       error
}

func (p Problem) String() string {
	return fmt.Sprintf("%s.%s %q: %v", p.Category, p.Column, p.Value, p.Err)
}

type decoder struct {
	problems []Problem
}

func (d *decoder) int64(msgID, cat, col, v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		d.problems = append(d.problems, Problem{msgID, cat, col, v, err})
	}
	return n
}

func (d *decoder) flag(msgID, cat, col, v string) bool {
	b, err := models.ParseFlag(v)
	if err != nil {
		d.problems = append(d.problems, Problem{msgID, cat, col, v, err})
	}
	return b
}

// Decode turns a parsed message file into records. Attachments and status
// rows are joined to their message by message_id; rows that reference no
// message in the file are dropped and reported as problems.
func Decode(doc *cif.Document, ct models.ContentType) ([]*models.Record, []Problem) {
	d := &decoder{}
	var records []*models.Record
	byID := map[string]*models.Record{}

	if t := doc.Table(CategoryInfo); t != nil {
		for i := range t.Rows {
			row := t.RowMap(i)
			id := row["message_id"]
			r := &models.Record{Message: models.Message{
				OrdinalID:       d.int64(id, CategoryInfo, "ordinal_id", row["ordinal_id"]),
				MessageID:       id,
				DepositionID:    row["deposition_data_set_id"],
				Sender:          row["sender"],
				ContextType:     row["context_type"],
				ContextValue:    row["context_value"],
				ParentMessageID: row["parent_message_id"],
				Subject:         row["message_subject"],
				Body:            row["message_text"],
				MessageType:     row["message_type"],
				ContentType:     ct,
				SendStatus:      d.flag(id, CategoryInfo, "send_status", row["send_status"]),
			}}
			if ts := row["timestamp"]; ts != "" {
				parsed, err := models.ParseTimestamp(ts)
				if err != nil {
					d.problems = append(d.problems, Problem{id, CategoryInfo, "timestamp", ts, err})
				}
				r.Message.Timestamp = parsed
			}
			if r.Message.MessageType == "" {
				r.Message.MessageType = models.DefaultMessageType
			}
			records = append(records, r)
			if _, dup := byID[id]; !dup && id != "" {
				byID[id] = r
			}
		}
	}

	if t := doc.Table(CategoryFiles); t != nil {
		for i := range t.Rows {
			row := t.RowMap(i)
			id := row["message_id"]
			r, ok := byID[id]
			if !ok {
				d.problems = append(d.problems, Problem{id, CategoryFiles, "message_id", id, errOrphanRow})
				continue
			}
			r.Files = append(r.Files, models.FileReference{
				OrdinalID:        d.int64(id, CategoryFiles, "ordinal_id", row["ordinal_id"]),
				MessageID:        id,
				DepositionID:     row["deposition_data_set_id"],
				ContentType:      row["content_type"],
				ContentFormat:    row["content_format"],
				PartitionNumber:  int(d.int64(id, CategoryFiles, "partition_number", row["partition_number"])),
				VersionID:        int(d.int64(id, CategoryFiles, "version_id", row["version_id"])),
				StorageType:      row["storage_type"],
				OriginalFilename: row["upload_file_name"],
			})
		}
	}

	if t := doc.Table(CategoryStatus); t != nil {
		for i := range t.Rows {
			row := t.RowMap(i)
			id := row["message_id"]
			r, ok := byID[id]
			if !ok {
				d.problems = append(d.problems, Problem{id, CategoryStatus, "message_id", id, errOrphanRow})
				continue
			}
			r.Status = &models.MessageStatus{
				MessageID:      id,
				DepositionID:   row["deposition_data_set_id"],
				ReadStatus:     d.flag(id, CategoryStatus, "read_status", row["read_status"]),
				ActionRequired: d.flag(id, CategoryStatus, "action_reqd", row["action_reqd"]),
				ForRelease:     d.flag(id, CategoryStatus, "for_release", row["for_release"]),
			}
		}
	}

	for _, p := range d.problems {
		if r, ok := byID[p.MessageID]; ok {
			r.Problems = append(r.Problems, p.String())
		}
	}
	if records == nil {
		records = []*models.Record{}
	}
	return records, d.problems
}
