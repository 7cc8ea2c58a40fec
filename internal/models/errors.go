package models

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories reported to callers.
type Kind int

const (
	KindUnknownDataAccess Kind = iota
	KindMalformedInput
	KindInvalidValue
	KindOutOfRange
	KindNotFound
	KindClientRequest
	KindConnectivity
)

var kindNames = [...]string{
	KindUnknownDataAccess: "UnknownDataAccessError",
	KindMalformedInput:    "MalformedInput",
	KindInvalidValue:      "InvalidValue",
	KindOutOfRange:        "OutOfRange",
	KindNotFound:          "NotFound",
	KindClientRequest:     "ClientRequestError",
	KindConnectivity:      "ConnectivityError",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// IsInput reports whether the kind is produced by local validation before any
// storage access.
func (k Kind) IsInput() bool {
	switch k {
	case KindMalformedInput, KindInvalidValue, KindOutOfRange:
		return true
	}
	return false
}

// IsStorage reports whether the kind originates from the storage layer.
func (k Kind) IsStorage() bool {
	switch k {
	case KindClientRequest, KindConnectivity, KindUnknownDataAccess:
		return true
	}
	return false
}

// Transient reports whether a caller may reasonably retry the failure later.
// ClientRequestError is a client fault and is not transient.
func (k Kind) Transient() bool {
	switch k {
	case KindConnectivity, KindUnknownDataAccess:
		return true
	}
	return false
}

// Error is the typed error returned by the order service.
type Error struct {
	Kind    Kind
	Message string
	// Detail is the raw diagnostic text of the underlying failure, kept verbatim.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Message
	}
	return e.Message + " Check the full message below: \n" + e.Detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf extracts the category of err. ok is false when err carries none.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// ErrAuditNotRecorded marks an update that was applied but whose audit entry
// could not be appended. The update itself is not reverted.
var ErrAuditNotRecorded = errors.New("order updated but audit entry was not recorded")

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
