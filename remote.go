package magvec

import (
	"context"

	"github.com/hupe1980/magvec/blobstore"
)

// OpenRemote fetches the named store file from bs into the temp directory
// (see WithTempDir), unless a previous fetch already left it there, and
// opens it.
func OpenRemote(ctx context.Context, bs blobstore.BlobStore, name string, opts ...Option) (*Store, error) {
	o := applyOptions(opts)
	path, err := blobstore.Fetch(ctx, bs, name, o.tempDir,
		blobstore.WithController(o.resources),
		blobstore.WithLogger(o.logger.Logger),
	)
	if err != nil {
		return nil, err
	}
	return Open(ctx, path, opts...)
}
