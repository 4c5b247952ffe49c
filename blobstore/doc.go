// Package blobstore provides read access to store files kept in object
// storage, and Fetch, which materializes such a file in a local directory
// so it can be opened like any other store.
//
// # Built-in Implementations
//
//   - LocalStore: a directory, files mapped with mmap
//   - MemoryStore: in-process blobs, mostly for tests
//   - s3.Store: Amazon S3 with range reads and concurrent downloads
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Implementations
//
// Implement BlobStore to support other backends. Implementations that can
// write a whole object to a local file faster than sequential range reads
// should also implement Downloader.
package blobstore
