// Package status defines the error taxonomy shared by sessions, pipelines and
// the hardware-facing layer, and maps errors to the status codes reported to
// listeners and to the hardware provider.
package status

import (
	"errors"
	"fmt"
)

// Code is a status code reported to registration listeners and to the
// hardware provider. Zero means success.
type Code int32

const (
	OK                   Code = 0
	InvalidArgument      Code = -1
	WrongState           Code = -2
	NotFound             Code = -3
	AlreadyExists        Code = -4
	InitError            Code = -5
	BadOperate           Code = -6
	OpenConflict         Code = -7
	DisabledProcess      Code = -8
	HalRegisterFailed    Code = -9
	HalUnregisterFailed  Code = -10
	MemoryOperationError Code = -11
)

var codeNames = map[Code]string{
	OK:                   "ok",
	InvalidArgument:      "invalid argument",
	WrongState:           "wrong state",
	NotFound:             "not found",
	AlreadyExists:        "already exists",
	InitError:            "init error",
	BadOperate:           "bad operate",
	OpenConflict:         "open conflict",
	DisabledProcess:      "disabled process",
	HalRegisterFailed:    "hal register failed",
	HalUnregisterFailed:  "hal unregister failed",
	MemoryOperationError: "memory operation error",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int32(c))
}

// Error carries a Code. Two *Error values match under errors.Is when their
// codes are equal, so wrapped errors can be compared against the sentinels.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Msg
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels, one per Code.
var (
	ErrInvalidArgument      = &Error{Code: InvalidArgument}
	ErrWrongState           = &Error{Code: WrongState}
	ErrNotFound             = &Error{Code: NotFound}
	ErrAlreadyExists        = &Error{Code: AlreadyExists}
	ErrInitError            = &Error{Code: InitError}
	ErrBadOperate           = &Error{Code: BadOperate}
	ErrOpenConflict         = &Error{Code: OpenConflict}
	ErrDisabledProcess      = &Error{Code: DisabledProcess}
	ErrHalRegisterFailed    = &Error{Code: HalRegisterFailed}
	ErrHalUnregisterFailed  = &Error{Code: HalUnregisterFailed}
	ErrMemoryOperationError = &Error{Code: MemoryOperationError}
)

// Errorf builds an *Error with the given code and a formatted message.
func Errorf(code Code, format string, args ...interface{}) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the Code from err. Errors that carry no code are reported as
// BadOperate, nil as OK.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return BadOperate
}
