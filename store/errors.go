package store

import (
	"errors"
	"os"
)

// Common storage errors. Where possible, these alias os package errors
// for compatibility with os.IsNotExist, os.IsPermission, etc.
var (
	ErrNotFound   = os.ErrNotExist
	ErrExist      = os.ErrExist
	ErrPermission = os.ErrPermission
	ErrInvalid    = os.ErrInvalid
	ErrIsDir      = errors.New("store: is a directory")
	ErrClosed     = errors.New("store: already closed")
)
