// Package minio serves store files from MinIO or another S3-compatible
// service through minio-go.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds: credentials.NewStaticV4(accessKey, secretKey, ""),
//	})
//	if err != nil { ... }
//	bs := minioblob.NewStore(client, "models", "embeddings/")
//	st, err := magvec.OpenRemote(ctx, bs, "glove.6B.300d.magnitude")
//
// Whole-file fetches use FGetObject; ranged reads use GetObject with a
// byte range.
package minio
