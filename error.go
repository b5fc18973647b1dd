package match

import "errors"

var (
	ErrInvalidParam     = errors.New("the param is invalid")
	ErrTimeout          = errors.New("timeout")
	ErrShutdown         = errors.New("engine is shutting down")
	ErrNotFound         = errors.New("not found")
	ErrSequenceGap      = errors.New("gap in book event sequence")
	ErrInconsistentBook = errors.New("book state is inconsistent")
)
