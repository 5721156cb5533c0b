package mirror

import "errors"

var errNotDirectory = errors.New("mirror root is not a directory")
