package ingest

import "errors"

var (
	// ErrNotBootstrapped indicates Handle was called before Bootstrap
	// provisioned the system category and author.
	ErrNotBootstrapped = errors.New("ingest pipeline not bootstrapped")
	// ErrFilePathUnavailable indicates the connection could not resolve a
	// download URL for a file id.
	ErrFilePathUnavailable = errors.New("remote file path unavailable")
)
