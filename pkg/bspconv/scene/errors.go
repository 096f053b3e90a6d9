package scene

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownFormat is returned for files that are neither HL/Xash BSP nor VBSP.
	ErrUnknownFormat = errors.New("unknown bsp format")
	// ErrMalformedGeometry is the cause of every GeometryError.
	ErrMalformedGeometry = errors.New("malformed geometry")
	// ErrMissingResource is returned by texture providers for unresolvable names.
	// Parsers treat it as non-fatal.
	ErrMissingResource = errors.New("missing resource")
	// ErrAtlasOverflow is returned when lightmap rectangles do not fit the maximum atlas size.
	ErrAtlasOverflow = errors.New("lightmap atlas overflow")
)

// GeometryError reports a face, edge or tree record whose references point outside their lump.
// Face is -1 when the problem is not tied to a single face.
type GeometryError struct {
	Model  int
	Face   int
	Reason string
}

func (e *GeometryError) Error() string {
	if e.Face < 0 {
		return fmt.Sprintf("%s: model %d: %s", ErrMalformedGeometry, e.Model, e.Reason)
	}
	return fmt.Sprintf("%s: model %d face %d: %s", ErrMalformedGeometry, e.Model, e.Face, e.Reason)
}

func (e *GeometryError) Unwrap() error {
	return ErrMalformedGeometry
}

// Malformed returns a GeometryError with a formatted reason.
func Malformed(model, face int, format string, args ...any) error {
	return &GeometryError{Model: model, Face: face, Reason: fmt.Sprintf(format, args...)}
}
