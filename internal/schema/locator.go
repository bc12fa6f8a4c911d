package schema

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

const uriScheme = "schema://"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// ValidName reports whether s is usable as a model, namespace or
// connection segment of a schema URI.
func ValidName(s string) bool { return namePattern.MatchString(s) }

// Locator reads schema documents by logical URI.
type Locator interface {
	Read(ctx context.Context, uri string) ([]byte, error)
}

// CandidateURIs returns the URIs tried for a model, most specific first.
func CandidateURIs(namespace, connection, model string) []string {
	var uris []string
	if connection != "" && connection != DefaultConnection {
		uris = append(uris, fmt.Sprintf("%s%s/%s/%s.json", uriScheme, namespace, connection, model))
	}
	return append(uris, fmt.Sprintf("%s%s/%s.json", uriScheme, namespace, model))
}

// FileLocator maps schema://ns/... onto Root/ns/...
type FileLocator struct {
	Root string
}

func (l FileLocator) Read(_ context.Context, uri string) ([]byte, error) {
	rel, ok := strings.CutPrefix(uri, uriScheme)
	if !ok {
		return nil, errors.Newf("unsupported schema uri %q", uri)
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return nil, errors.Newf("invalid schema uri %q", uri)
		}
	}
	data, err := os.ReadFile(filepath.Join(l.Root, filepath.FromSlash(rel)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrResourceNotFound, uri)
		}
		return nil, errors.Wrapf(err, "read %s", uri)
	}
	return data, nil
}
