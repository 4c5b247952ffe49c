// Package s3 serves store files from an Amazon S3 bucket.
//
//	bs, err := s3.New(ctx, "my-bucket", s3.WithPrefix("embeddings/"))
//	if err != nil { ... }
//	st, err := magvec.OpenRemote(ctx, bs, "glove.6B.300d.magnitude")
//
// Whole-file fetches go through the transfer manager's concurrent ranged
// downloader. WithEndpoint points the client at S3-compatible services.
package s3
