package format

// Record is one row of the vectors table.
type Record struct {
	// Row is the 1-based rowid.
	Row        int64
	Key        string
	Components []int64
	// Magnitude is the L2 norm of the original vector; zero when the file
	// stores no magnitudes.
	Magnitude float64
}

// Vector decodes the record into a new slice of length dim, where dim may
// exceed len(Components) to leave room for placeholder dimensions.
func (r *Record) Vector(dim, precision int, normalized bool) []float32 {
	v := make([]float32, max(dim, len(r.Components)))
	Decode(v, r.Components, precision, r.Magnitude, normalized)
	return v
}
