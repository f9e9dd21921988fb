// Package uploadsvc stores uploaded media on the local filesystem under
// Conf.MediaRoot and serves it back through Conf.MediaBaseURL.
package uploadsvc

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/MoonNight31/AppCaryamil/core"
)

type localStorage struct {
	root    string
	baseURL string
}

var _ core.FileStorage = (*localStorage)(nil)

func NewLocalStorage() core.FileStorage {
	return &localStorage{
		root:    core.Conf.MediaRoot,
		baseURL: strings.TrimSuffix(core.Conf.MediaBaseURL, "/"),
	}
}

// Save writes r under <root>/<dir>/ with a random prefix guarding against
// name collisions, and returns the public URL of the file.
func (st localStorage) Save(r io.Reader, dir, filename string) (string, error) {
	filename = sanitizeFilename(filename)
	if filename == "" {
		filename = "file"
	}
	filename = uuid.NewString()[:8] + "-" + filename

	absDir := filepath.Join(st.root, filepath.FromSlash(dir))
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating media dir")
	}

	f, err := os.Create(filepath.Join(absDir, filename))
	if err != nil {
		return "", errors.Wrap(err, "creating media file")
	}
	defer func() { _ = f.Close() }()

	if _, err = io.Copy(f, r); err != nil {
		return "", errors.Wrap(err, "writing media file")
	}
	return st.baseURL + "/" + path.Join(dir, filename), nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(filepath.Clean(name))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}
