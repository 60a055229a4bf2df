package exporter

import (
	"fmt"

	"github.com/dmitrijs2005/depmsg/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var diffOptions = cmp.Options{
	cmpopts.IgnoreFields(models.Message{}, "OrdinalID"),
	cmpopts.IgnoreFields(models.Record{}, "Problems"),
	cmpopts.IgnoreFields(models.FileReference{}, "OrdinalID"),
	cmpopts.EquateEmpty(),
	cmpopts.SortSlices(func(a, b *models.Record) bool {
		return a.Message.MessageID < b.Message.MessageID
	}),
	cmpopts.SortSlices(func(a, b models.FileReference) bool {
		return fileSortKey(a) < fileSortKey(b)
	}),
}

func fileSortKey(f models.FileReference) string {
	k := f.Key()
	return fmt.Sprintf("%s\x00%s\x00%09d\x00%09d", k.MessageID, k.ContentType, k.VersionID, k.PartitionNumber)
}

// Diff compares two record sets ignoring storage ordinals and order. Ids and
// defaults are normalized on copies first. It returns "" when they match.
func Diff(want, got []*models.Record) string {
	return cmp.Diff(normalized(want), normalized(got), diffOptions)
}

func normalized(in []*models.Record) []*models.Record {
	out := make([]*models.Record, len(in))
	for i, r := range in {
		cp := *r
		cp.Files = append([]models.FileReference(nil), r.Files...)
		if r.Status != nil {
			st := *r.Status
			cp.Status = &st
		}
		cp.Message.Timestamp = cp.Message.Timestamp.UTC()
		if cp.Message.MessageType == "" {
			cp.Message.MessageType = models.DefaultMessageType
		}
		cp.Normalize()
		out[i] = &cp
	}
	return out
}
