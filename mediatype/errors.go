package mediatype

import "fmt"

// ErrUnsupportedStream is returned for caps which cannot be represented as
// a graph media type.
type ErrUnsupportedStream struct {
	Caps string
	Err  error
}

func (e ErrUnsupportedStream) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unsupported stream '%s'", e.Caps)
	}
	return fmt.Sprintf("unsupported stream '%s': %v", e.Caps, e.Err)
}

func (e ErrUnsupportedStream) Unwrap() error {
	return e.Err
}
