// Package docstore implements the flat-file backend: each deposition is a
// directory holding one versioned CIF file per message category. Files are
// never rewritten; every change produces the next version.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/dmitrijs2005/depmsg/internal/docstore/blob"
	"github.com/dmitrijs2005/depmsg/internal/docstore/cif"
	"github.com/dmitrijs2005/depmsg/internal/logging"
	"github.com/dmitrijs2005/depmsg/internal/models"
)

var errOrphanRow = errors.New("row references a message that is not in the file")

type Store struct {
	blobs  blob.Store
	logger logging.Logger

	// Per-deposition locks serialize read-modify-write cycles in this process.
	locks sync.Map
}

func New(blobs blob.Store, logger logging.Logger) *Store {
	return &Store{blobs: blobs, logger: logger}
}

func (s *Store) lock(depID string) func() {
	v, _ := s.locks.LoadOrStore(depID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// latest returns the newest version of each category file of a deposition.
func (s *Store) latest(ctx context.Context, depID string) (map[models.ContentType]fileVersion, error) {
	keys, err := s.blobs.List(ctx, depID+"/")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", depID, err)
	}
	out := map[models.ContentType]fileVersion{}
	for _, k := range keys {
		dep, ct, v, ok := parseFileKey(k)
		if !ok || dep != depID {
			continue
		}
		if cur, seen := out[ct]; !seen || v > cur.version {
			out[ct] = fileVersion{key: k, version: v}
		}
	}
	return out, nil
}

func (s *Store) readFile(ctx context.Context, fv fileVersion, ct models.ContentType) ([]*models.Record, error) {
	b, err := s.blobs.Get(ctx, fv.key)
	if err != nil {
		return nil, err
	}
	doc, err := cif.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fv.key, err)
	}
	records, problems := Decode(doc, ct)
	for _, p := range problems {
		s.logger.Warn(ctx, "undecodable value in message file",
			"key", fv.key, "message_id", p.MessageID, "category", p.Category,
			"column", p.Column, "value", p.Value, "error", p.Err)
	}
	return records, nil
}

// ReadDeposition returns every record from the latest version of each
// category file, in category order and file order within a category.
// It returns common.ErrorNotFound when the deposition has no message files.
func (s *Store) ReadDeposition(ctx context.Context, depID string) ([]*models.Record, error) {
	latest, err := s.latest(ctx, depID)
	if err != nil {
		return nil, err
	}
	if len(latest) == 0 {
		return nil, fmt.Errorf("deposition %s: %w", depID, common.ErrorNotFound)
	}

	records := []*models.Record{}
	for _, ct := range models.ContentTypes {
		fv, ok := latest[ct]
		if !ok {
			continue
		}
		rs, err := s.readFile(ctx, fv, ct)
		if err != nil {
			return nil, err
		}
		records = append(records, rs...)
	}
	return records, nil
}

// WriteDeposition writes the next version of the category file for every
// content type present in records. Each file holds exactly the given records
// of its type; other categories are left alone.
func (s *Store) WriteDeposition(ctx context.Context, depID string, records []*models.Record) error {
	unlock := s.lock(depID)
	defer unlock()

	_, err := s.writeDeposition(ctx, depID, records)
	return err
}

// WriteDocuments is WriteDeposition returning the documents that were written.
func (s *Store) WriteDocuments(ctx context.Context, depID string, records []*models.Record) ([]*Document, error) {
	unlock := s.lock(depID)
	defer unlock()

	return s.writeDeposition(ctx, depID, records)
}

func (s *Store) writeDeposition(ctx context.Context, depID string, records []*models.Record) ([]*Document, error) {
	for _, r := range records {
		if r.Message.DepositionID != depID {
			return nil, fmt.Errorf("%w: message %s belongs to %s, not %s",
				common.ErrInvalidRecord, r.Message.MessageID, r.Message.DepositionID, depID)
		}
		if !r.Message.ContentType.Valid() {
			return nil, fmt.Errorf("%w: message %s has content type %q",
				common.ErrInvalidRecord, r.Message.MessageID, r.Message.ContentType)
		}
	}

	latest, err := s.latest(ctx, depID)
	if err != nil {
		return nil, err
	}

	docs := Render(depID, records)
	for _, d := range docs {
		d.Version = latest[d.ContentType].version + 1
		d.Key = FileKey(depID, d.ContentType, d.Version)

		b, err := cif.Marshal(d.CIF)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", d.Key, err)
		}
		if err := s.blobs.Put(ctx, d.Key, b); err != nil {
			return nil, fmt.Errorf("write %s: %w", d.Key, err)
		}
		s.logger.Debug(ctx, "message file written", "key", d.Key, "bytes", len(b))
	}
	return docs, nil
}

// Render groups records by content type and encodes one document per type.
// Version and Key are left unset.
func Render(depID string, records []*models.Record) []*Document {
	groups := map[models.ContentType][]*models.Record{}
	for _, r := range records {
		groups[r.Message.ContentType] = append(groups[r.Message.ContentType], r)
	}
	var docs []*Document
	for _, ct := range models.ContentTypes {
		rs, ok := groups[ct]
		if !ok {
			continue
		}
		docs = append(docs, &Document{DepositionID: depID, ContentType: ct, CIF: Encode(rs)})
	}
	return docs
}

// AppendRecord adds one record to its category file. A message id already
// present anywhere in the deposition yields common.ErrDuplicateKey and no
// write.
func (s *Store) AppendRecord(ctx context.Context, rec *models.Record) error {
	depID := rec.Message.DepositionID
	unlock := s.lock(depID)
	defer unlock()

	existing, err := s.ReadDeposition(ctx, depID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return err
	}

	var same []*models.Record
	var maxOrdinal int64
	for _, r := range existing {
		if r.Message.MessageID == rec.Message.MessageID {
			return fmt.Errorf("message %s: %w", rec.Message.MessageID, common.ErrDuplicateKey)
		}
		if r.Message.ContentType == rec.Message.ContentType {
			same = append(same, r)
			if r.Message.OrdinalID > maxOrdinal {
				maxOrdinal = r.Message.OrdinalID
			}
		}
	}

	cp := *rec
	if cp.Message.OrdinalID == 0 {
		cp.Message.OrdinalID = maxOrdinal + 1
	}
	_, err = s.writeDeposition(ctx, depID, append(same, &cp))
	return err
}

// UpdateStatus replaces the status row of a message and writes the next
// version of the owning file. Unknown messages yield common.ErrorNotFound.
func (s *Store) UpdateStatus(ctx context.Context, st *models.MessageStatus) error {
	depID := st.DepositionID
	unlock := s.lock(depID)
	defer unlock()

	existing, err := s.ReadDeposition(ctx, depID)
	if err != nil {
		return err
	}

	var target *models.Record
	for _, r := range existing {
		if r.Message.MessageID == st.MessageID {
			target = r
			break
		}
	}
	if target == nil {
		return fmt.Errorf("message %s: %w", st.MessageID, common.ErrorNotFound)
	}

	cp := *st
	target.Status = &cp

	var same []*models.Record
	for _, r := range existing {
		if r.Message.ContentType == target.Message.ContentType {
			same = append(same, r)
		}
	}
	_, err = s.writeDeposition(ctx, depID, same)
	return err
}

// Messages lists a deposition's messages by timestamp, then ordinal id, the
// same order the database returns them in.
func (s *Store) Messages(ctx context.Context, depID string) ([]models.Message, error) {
	records, err := s.ReadDeposition(ctx, depID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := &records[i].Message, &records[j].Message
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.OrdinalID < b.OrdinalID
	})
	out := make([]models.Message, len(records))
	for i, r := range records {
		out[i] = r.Message
	}
	return out, nil
}

// FileReferences returns the attachments of one message.
func (s *Store) FileReferences(ctx context.Context, depID, msgID string) ([]models.FileReference, error) {
	records, err := s.ReadDeposition(ctx, depID)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.Message.MessageID == msgID {
			out := make([]models.FileReference, len(r.Files))
			copy(out, r.Files)
			return out, nil
		}
	}
	return nil, fmt.Errorf("message %s: %w", msgID, common.ErrorNotFound)
}

// Exists reports whether the deposition has at least one message file.
func (s *Store) Exists(ctx context.Context, depID string) (bool, error) {
	latest, err := s.latest(ctx, depID)
	if err != nil {
		return false, err
	}
	return len(latest) > 0, nil
}

// ListDepositions returns the deposition directories found in the store.
func (s *Store) ListDepositions(ctx context.Context) ([]string, error) {
	dirs, err := s.blobs.Dirs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list depositions: %w", err)
	}
	var out []string
	for _, d := range dirs {
		if strings.HasPrefix(d, DepositionPrefix) {
			out = append(out, d)
		}
	}
	return out, nil
}
