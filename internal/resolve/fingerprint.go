package resolve

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/project-registry/internal/model"
)

const (
	fingerprintLen = 12
	// minNameRunes below this, normalization destroyed the name and the raw
	// prefix is used instead.
	minNameRunes = 4
	rawNameRunes = 10
)

// Fingerprint derives a stable 12-hex-character identifier from the
// location, normalized name and near-term scale of a.
func Fingerprint(a *model.Attributes) string {
	name := NormalizeName(a.Name)
	if utf8.RuneCountInString(name) < minNameRunes {
		name = firstRunes(a.Name, rawNameRunes)
	}

	var scale string
	if a.NearTermScale != nil {
		scale = strconv.FormatFloat(*a.NearTermScale, 'f', -1, 64)
	}

	key := LocationKey(effectiveLocation(a)) + "|" + name + "|" + scale
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// effectiveLocation is the location field, or the location named in the
// project name when the field is empty.
func effectiveLocation(a *model.Attributes) string {
	if loc := strings.TrimSpace(a.Location); loc != "" {
		return loc
	}
	return ExtractLocation(a.Name)
}

func firstRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
