package docstore

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/dmitrijs2005/depmsg/internal/models"
)

// DepositionPrefix marks deposition directories picked up by a directory scan.
const DepositionPrefix = "D_"

var fileKeyRe = regexp.MustCompile(`^([^/]+)/([^/]+)_(messages-to-depositor|messages-from-depositor|notes-from-annotator)_P(\d+)\.cif\.V(\d+)$`)

// FileKey returns the blob key of one version of a deposition's message file:
// <dep>/<dep>_<content-type>_P1.cif.V<n>.
func FileKey(depID string, ct models.ContentType, version int) string {
	return fmt.Sprintf("%s/%s_%s_P1.cif.V%d", depID, depID, ct, version)
}

type fileVersion struct {
	key     string
	version int
}

func parseFileKey(key string) (dep string, ct models.ContentType, version int, ok bool) {
	m := fileKeyRe.FindStringSubmatch(key)
	if m == nil || m[1] != m[2] || m[4] != "1" {
		return "", "", 0, false
	}
	v, err := strconv.Atoi(m[5])
	if err != nil {
		return "", "", 0, false
	}
	return m[1], models.ContentType(m[3]), v, true
}
