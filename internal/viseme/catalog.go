// Package viseme maps ARPABET phonemes onto the character's mouth shapes.
package viseme

import (
	"path/filepath"
	"strings"

	"github.com/book-expert/toon-service/internal/timeline"
)

// Mouth shape identifiers shared by every rig. Each names one image in the
// rig's viseme folder.
const (
	Neutral    = "neutral"
	AEI        = "aei"
	EE         = "ee"
	O          = "o"
	BMP        = "bmp"
	CDGKNSTXYZ = "cdgknstxyz"
	FV         = "fv"
	L          = "l"
	R          = "r"
	QW         = "qw"
	SHCH       = "shch"
	TH         = "th"
)

// Shapes lists every mouth shape identifier in the default catalog.
var Shapes = []string{Neutral, AEI, EE, O, BMP, CDGKNSTXYZ, FV, L, R, QW, SHCH, TH}

var defaultTable = map[string]string{
	// Vowels
	"AA": AEI, "AE": AEI, "AH": AEI, "AO": O,
	"EH": EE, "IH": EE, "IY": EE, "UH": O, "UW": O,
	"ER": R,

	// Diphthongs
	"AY": AEI, "AW": AEI, "EY": EE, "OW": O, "OY": O,

	// Consonants
	"B": BMP, "M": BMP, "P": BMP,
	"C": CDGKNSTXYZ, "D": CDGKNSTXYZ, "G": CDGKNSTXYZ, "K": CDGKNSTXYZ,
	"N": CDGKNSTXYZ, "NG": CDGKNSTXYZ, "S": CDGKNSTXYZ, "T": CDGKNSTXYZ,
	"X": CDGKNSTXYZ, "Y": CDGKNSTXYZ, "Z": CDGKNSTXYZ, "ZH": SHCH,
	"HH": AEI,
	"F":  FV, "V": FV,
	"L": L,
	"R": R,
	"W": QW, "Q": QW,
	"SH": SHCH, "CH": SHCH, "JH": SHCH,
	"TH": TH, "DH": TH,

	"SIL": Neutral,
}

// Catalog is an immutable phoneme to mouth shape table with a default for
// phonemes it does not know.
type Catalog struct {
	table    map[string]string
	fallback string
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(nil, Neutral)
}

// NewCatalog returns the default table with overrides applied. Override keys
// are phoneme symbols and values are mouth shape identifiers. An empty
// fallback means Neutral.
func NewCatalog(overrides map[string]string, fallback string) *Catalog {
	table := make(map[string]string, len(defaultTable)+len(overrides))

	for phoneme, shape := range defaultTable {
		table[phoneme] = shape
	}

	for phoneme, shape := range overrides {
		table[strings.ToUpper(phoneme)] = Canonical(shape)
	}

	if fallback == "" {
		fallback = Neutral
	}

	return &Catalog{table: table, fallback: Canonical(fallback)}
}

// Default returns the mouth shape used for unknown phonemes.
func (c *Catalog) Default() string {
	return c.fallback
}

// Lookup maps one phoneme symbol. Stress digits ("AH0", "OW1") are ignored.
func (c *Catalog) Lookup(phoneme string) string {
	symbol := strings.TrimRight(strings.ToUpper(strings.TrimSpace(phoneme)), "0123456789")

	if shape, ok := c.table[symbol]; ok {
		return shape
	}

	return c.fallback
}

// Map converts a phoneme track into a viseme track, copying every interval
// unchanged.
func (c *Catalog) Map(phonemes timeline.PhonemeTrack) timeline.VisemeTrack {
	return timeline.Map(phonemes, c.Lookup)
}

// Canonical strips directories and image extensions from a mouth shape
// reference, so "visemes/o.png" and "o" name the same shape.
func Canonical(shape string) string {
	base := filepath.Base(strings.TrimSpace(shape))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}

	return strings.TrimSuffix(base, filepath.Ext(base))
}
