package schema

import "github.com/cockroachdb/errors"

var (
	// ErrSchemaNotFound means no resource exists at any candidate path.
	ErrSchemaNotFound = errors.New("schema not found")
	// ErrSchemaInvalid means the resource exists but is structurally malformed.
	ErrSchemaInvalid = errors.New("schema invalid")
	// ErrResourceNotFound is returned by a Locator for a missing URI.
	ErrResourceNotFound = errors.New("schema resource not found")
	// ErrInvalidRelationship means a relationship is declared in a way that
	// cannot be executed, such as an attach action without a related id.
	ErrInvalidRelationship = errors.New("invalid relationship configuration")
)

// Issue is a problem found while normalizing a schema. A fatal issue makes
// the schema unusable; any other issue names an attribute that was dropped.
type Issue struct {
	Path   string
	Reason string
	Fatal  bool
}

func (i Issue) String() string { return i.Path + ": " + i.Reason }
