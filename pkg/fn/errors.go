package fn

import "errors"

var errNil = errors.New("fn: failed result without error")
