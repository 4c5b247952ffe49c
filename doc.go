// Package magvec serves word embeddings and other keyed vectors from a
// single read-only SQLite file.
//
// A store maps keys to fixed-point vectors. Lookups are cached, keys that
// are not stored get a deterministic synthesized vector, and similarity
// search scans a memory-mapped float32 matrix that is built once per file
// and shared between stores and processes.
//
// # Quick Start
//
//	ctx := context.Background()
//	st, err := magvec.Open(ctx, "glove.6B.300d.magnitude")
//	if err != nil { ... }
//	defer st.Close()
//
//	v, _ := st.Query(ctx, "cat")                            // [Dim]float32
//	batch, _ := st.QueryBatch(ctx, []string{"a", "cat"})    // [2][Dim]float32
//	nested, _ := st.QueryNested(ctx, [][]string{{"hi"}, {"a", "cat"}})
//
// Keys missing from the file never fail: they get a vector blended from a
// hash-seeded random component and the vectors of similar stored keys, so
// "catss" lands near "cats".
//
// # Search
//
//	res, _ := st.MostSimilar(ctx, magvec.SearchRequest{
//	    Positive: magvec.Keys("king", "woman"),
//	    Negative: magvec.Keys("man"),
//	    TopN:     5,
//	})
//
// MostSimilarCosMul ranks with the multiplicative objective instead. The
// first search waits for the search matrix; WithEager (the default) starts
// building it in the background as soon as the store opens.
//
// # Padding
//
// WithPadToLength, WithPadLeft and WithTruncateLeft shape QueryBatch and
// QueryNested output into fixed-length sequences padded with zero vectors.
// PadTo, PadLeft, TruncateLeft and Normalized change them for one call:
//
//	rows, _ := st.QueryBatch(ctx, tokens, magvec.PadTo(64), magvec.PadLeft(true))
//
// # Combining Stores
//
// Concatenate joins stores side by side, for example GloVe and fastText
// vectors of the same tokens:
//
//	both, _ := magvec.Concatenate(glove, fasttext)
//	v, _ := both.Query(ctx, "cat") // glove.Dim()+fasttext.Dim()
//
// # Remote Files
//
// OpenRemote fetches a store file from a blobstore.BlobStore (local
// directory, S3 or MinIO) into the temp directory before opening it.
// Writing store files is the job of the writer package.
package magvec
