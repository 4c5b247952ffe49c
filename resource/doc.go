// Package resource bounds the background work stores do on behalf of a
// process: how much memory cache preloading may pin, how many matrix
// builds and preloads run at once, and how fast they read and write.
//
//	rc := resource.NewController(resource.Config{
//	    MaxBackgroundJobs:  2,
//	    IOLimitBytesPerSec: 64 << 20,
//	})
//	a, err := magvec.Open(ctx, "glove.magnitude", magvec.WithResourceController(rc))
//	b, err := magvec.Open(ctx, "fasttext.magnitude", magvec.WithResourceController(rc))
package resource
