package core

import "io"

// FileStorage stores uploaded binaries and returns a retrievable URL reference.
// The domain only ever keeps the reference.
type FileStorage interface {
	// Save writes the content under dir (relative, may contain time.Format verbs
	// already expanded by the caller) and returns the public URL path.
	Save(r io.Reader, dir, filename string) (string, error)
}
