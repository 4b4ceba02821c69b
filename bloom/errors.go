package bloom

import "errors"

var errBadFormat = errors.New("bloom: truncated filter")
