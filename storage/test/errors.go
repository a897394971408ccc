package test

import "errors"

var errOops = errors.New("oops")
