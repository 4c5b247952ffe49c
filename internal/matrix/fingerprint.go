package matrix

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

const (
	// wholeFileDigestLimit is the largest file digested in full.
	wholeFileDigestLimit = 100 << 20
	sampleChunks         = 25
	sampleChunkSize      = 1 << 20
)

// Params identifies the matrix derived from a store file.
type Params struct {
	Path            string
	Rows            int64
	Dim             int
	Precision       int
	CaseInsensitive bool
}

// Fingerprint derives a stable identifier for the matrix built from the
// store at p.Path. It changes whenever the file content or any parameter
// affecting the matrix changes.
func Fingerprint(p Params) (string, error) {
	digest, err := contentDigest(p.Path)
	if err != nil {
		return "", err
	}

	h := xxhash.New()
	for _, part := range []string{
		p.Path,
		strconv.FormatUint(digest, 16),
		strconv.FormatInt(p.Rows, 10),
		strconv.Itoa(p.Dim),
		strconv.Itoa(p.Precision),
		strconv.FormatBool(p.CaseInsensitive),
	} {
		_, _ = h.WriteString(part)
		_, _ = h.WriteString(",")
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// contentDigest hashes small files completely and large ones by their size
// plus evenly spaced samples.
func contentDigest(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}

	h := xxhash.New()
	size := fi.Size()
	if size <= wholeFileDigestLimit {
		if _, err := io.Copy(h, f); err != nil {
			return 0, err
		}
		return h.Sum64(), nil
	}

	_, _ = h.WriteString(strconv.FormatInt(size, 10))
	buf := make([]byte, sampleChunkSize)
	step := (size - sampleChunkSize) / (sampleChunks - 1)
	for i := range int64(sampleChunks) {
		n, err := f.ReadAt(buf, i*step)
		if err != nil && err != io.EOF {
			return 0, err
		}
		_, _ = h.Write(buf[:n])
	}
	return h.Sum64(), nil
}
