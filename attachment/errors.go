package attachment

import "errors"

var (
	errNotConnected   = errors.New("attachment: session not connected")
	errMissingKind    = errors.New("attachment: stream kind required")
	errMissingHandler = errors.New("attachment: handler required")
)
