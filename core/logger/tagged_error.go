package logger

import "errors"

// TaggedError remembers which logger tag should report the error once it
// reaches the CLI boundary.
type TaggedError struct {
	tag string
	err error
}

func (e *TaggedError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *TaggedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// WithTag wraps err with a logger tag. A nil err stays nil.
func WithTag(tag string, err error) error {
	if err == nil {
		return nil
	}
	return &TaggedError{tag: tag, err: err}
}

// ErrorTag returns the tag of the first TaggedError in err's chain.
func ErrorTag(err error) string {
	var tagged *TaggedError
	if errors.As(err, &tagged) && tagged != nil {
		return tagged.tag
	}
	return ""
}
