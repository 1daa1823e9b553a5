package etcd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// etcd v2 error codes
const (
	ErrCodeKeyNotFound     = 100
	ErrCodeTestFailed      = 101
	ErrCodeNotFile         = 102
	ErrCodeNotDir          = 104
	ErrCodeNodeExist       = 105
	ErrCodeRootROnly       = 107
	ErrCodeDirNotEmpty     = 108
	ErrCodeUnauthorized    = 110
	ErrCodePrevValueNeeded = 201
	ErrCodeTTLNaN          = 202
	ErrCodeIndexNaN        = 203
	ErrCodeInvalidField    = 209
	ErrCodeRaftInternal    = 300
	ErrCodeLeaderElect     = 301
)

var (
	ErrCompareFailed = errors.New("etcd: compare failed")
	ErrIsDir         = errors.New("etcd: node is a directory")
)

// Error is an error document returned by etcd.
type Error struct {
	Code    int    `json:"errorCode"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
	Index   uint64 `json:"index,omitempty"`

	// Status is the HTTP status the document came with.
	Status int `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != "" {
		return fmt.Sprintf("[etcd] error from server: %s (%d): %s", e.Message, e.Code, e.Cause)
	}
	return fmt.Sprintf("[etcd] error from server: %s (%d)", e.Message, e.Code)
}

func (e *Error) Unwrap() error {
	switch e.Code {
	case ErrCodeKeyNotFound:
		return fs.ErrNotExist
	case ErrCodeNodeExist:
		return fs.ErrExist
	case ErrCodeTestFailed:
		return ErrCompareFailed
	case ErrCodeUnauthorized, ErrCodeRootROnly:
		return os.ErrPermission
	default:
		return nil
	}
}

// HttpError is returned when etcd answers with a non-2xx status or an empty
// body that does not carry an etcd error document.
type HttpError struct {
	Code int
	Body []byte
	e    error
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("HTTP Error %d: %s", e.Code, e.Body)
}

func (e *HttpError) Unwrap() error {
	return e.e
}
