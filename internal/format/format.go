// Package format defines the on-disk layout of a vector store file: table
// names, format metadata keys, fixed-point encoding and the codecs used for
// embedded meta chunks.
package format

import (
	"fmt"
	"strings"
)

// Version is the highest store format version this module reads and the
// version it writes.
const Version = 2

const (
	// DefaultPrecision is the number of decimal digits kept by the writer.
	DefaultPrecision = 7
	// DefaultSubwordStart is the shortest indexed character n-gram.
	DefaultSubwordStart = 3
	// DefaultSubwordEnd is the longest indexed character n-gram.
	DefaultSubwordEnd = 6
)

// Word boundary markers and the namespace separator used when hashing keys.
const (
	BOW      = "\uf000"
	EOW      = "\uf000"
	RareChar = "\uf002"
)

// Table names.
const (
	TableVectors    = "magnitude"
	TableFormat     = "magnitude_format"
	TableSubword    = "magnitude_subword"
	// TableSubwordRepeat holds, per n-gram and level k >= 2, the rows whose
	// key contains the n-gram at least k times.
	TableSubwordRepeat = "magnitude_subword_repeat"
	IndexKey        = "magnitude_key_idx"
	MetaTablePrefix = "magnitude_meta_"
)

// Keys of the format table.
const (
	KeySize             = "size"
	KeyDim              = "dim"
	KeyPrecision        = "precision"
	KeyVersion          = "version"
	KeySubword          = "subword"
	KeySubwordStart     = "subword_start"
	KeySubwordEnd       = "subword_end"
	KeyEntropy          = "entropy"
	KeyMaxDuplicateKeys = "max_duplicate_keys"
	KeyMetaCodec        = "meta_codec"
	KeyApprox           = "approx"
	KeyELMo             = "elmo"
)

// Metadata is the decoded content of the format table.
type Metadata struct {
	Size             int64
	Dim              int
	Precision        int
	Version          int
	Subword          bool
	SubwordStart     int
	SubwordEnd       int
	Entropy          []int
	MaxDuplicateKeys int
	MetaCodec        Codec
	Approx           bool
	ELMo             bool
}

// DefaultMetadata returns metadata with the defaults applied to keys that a
// file may omit.
func DefaultMetadata() Metadata {
	return Metadata{
		Version:          1,
		SubwordStart:     DefaultSubwordStart,
		SubwordEnd:       DefaultSubwordEnd,
		MaxDuplicateKeys: 1,
		MetaCodec:        CodecLZ4,
	}
}

// Set applies one row of the format table.
func (m *Metadata) Set(key string, value int64) {
	switch strings.ToLower(key) {
	case KeySize:
		m.Size = value
	case KeyDim:
		m.Dim = int(value)
	case KeyPrecision:
		m.Precision = int(value)
	case KeyVersion:
		m.Version = int(value)
	case KeySubword:
		m.Subword = value != 0
	case KeySubwordStart:
		m.SubwordStart = int(value)
	case KeySubwordEnd:
		m.SubwordEnd = int(value)
	case KeyEntropy:
		m.Entropy = append(m.Entropy, int(value))
	case KeyMaxDuplicateKeys:
		if value > 0 {
			m.MaxDuplicateKeys = int(value)
		}
	case KeyMetaCodec:
		m.MetaCodec = Codec(value)
	case KeyApprox:
		m.Approx = value != 0
	case KeyELMo:
		m.ELMo = value != 0
	}
}

// Rows returns the metadata as format table rows, in write order.
func (m *Metadata) Rows() [][2]any {
	rows := [][2]any{
		{KeySize, m.Size},
		{KeyDim, m.Dim},
		{KeyPrecision, m.Precision},
		{KeyVersion, m.Version},
		{KeySubword, boolInt(m.Subword)},
		{KeySubwordStart, m.SubwordStart},
		{KeySubwordEnd, m.SubwordEnd},
		{KeyMaxDuplicateKeys, m.MaxDuplicateKeys},
		{KeyMetaCodec, int(m.MetaCodec)},
		{KeyApprox, boolInt(m.Approx)},
		{KeyELMo, boolInt(m.ELMo)},
	}
	for _, d := range m.Entropy {
		rows = append(rows, [2]any{KeyEntropy, d})
	}
	return rows
}

// Check reports whether a file with this metadata can be read.
func (m *Metadata) Check() error {
	if m.Version > Version {
		return &IncompatibleFormatError{FileVersion: m.Version, SupportedVersion: Version}
	}
	if m.Dim <= 0 {
		return fmt.Errorf("%w: dimension %d", ErrCorrupt, m.Dim)
	}
	if m.Subword && (m.SubwordStart <= 0 || m.SubwordEnd < m.SubwordStart) {
		return fmt.Errorf("%w: subword range [%d, %d]", ErrCorrupt, m.SubwordStart, m.SubwordEnd)
	}
	return nil
}

// MetaTable returns the name of the n-th (1-based) meta chunk table.
func MetaTable(n int) string {
	return fmt.Sprintf("%s%d", MetaTablePrefix, n)
}

// DimColumn returns the column name of dimension i.
func DimColumn(i int) string {
	return fmt.Sprintf("dim_%d", i)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
