package main

import "errors"

var errInvalidArgCount = errors.New("expected exactly one argument: file path")
