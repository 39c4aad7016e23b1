package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies failures so callers can decide between retrying, degrading and aborting.
type Kind string

const (
	KindInvalidInput     Kind = "invalid_input"
	KindNotFound         Kind = "not_found"
	KindRateLimited      Kind = "rate_limited"
	KindAuthentication   Kind = "authentication"
	KindTransient        Kind = "transient"
	KindUpstreamProtocol Kind = "upstream_protocol"
	KindStorage          Kind = "storage"
	KindConflict         Kind = "conflict"
	KindProcessing       Kind = "processing"
	KindInternal         Kind = "internal"
)

// Code is the machine-checkable name of a failure, stable across releases.
type Code string

const (
	CodeNoImageProvided     Code = "NoImageProvided"
	CodeInvalidFrameType    Code = "InvalidFrameType"
	CodeImageTooLarge       Code = "ImageTooLarge"
	CodeInvalidRequest      Code = "InvalidRequest"
	CodeRecordNotFound      Code = "RecordNotFound"
	CodeUnknownFrame        Code = "UnknownFrame"
	CodeDecodeError         Code = "DecodeError"
	CodeAssetMissing        Code = "AssetMissing"
	CodeEncodeError         Code = "EncodeError"
	CodeAuthentication      Code = "AuthenticationError"
	CodeRateLimited         Code = "RateLimited"
	CodeTransientNetwork    Code = "TransientNetworkError"
	CodeUpstreamProtocol    Code = "UpstreamProtocolError"
	CodeUpstreamUnavailable Code = "UpstreamUnavailable"
	CodeStorageUnavailable  Code = "StorageUnavailable"
	CodeStorageConflict     Code = "StorageConflict"
	CodeObjectNotFound      Code = "ObjectNotFound"
	CodeStaleTransition     Code = "StaleTransition"
	CodeInternal            Code = "Internal"
)

// Error is the typed failure returned by every component of the generation pipeline.
type Error struct {
	Kind       Kind
	Code       Code
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error by code so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || other == nil || e == nil {
		return false
	}
	return other.Code != "" && other.Code == e.Code
}

// NewError builds a typed error.
func NewError(kind Kind, code Code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: cause}
}

// Sentinels for errors.Is comparisons. Never return these directly when a cause is available.
var (
	ErrNoImageProvided    = &Error{Kind: KindInvalidInput, Code: CodeNoImageProvided, Message: "no image provided"}
	ErrInvalidFrameType   = &Error{Kind: KindInvalidInput, Code: CodeInvalidFrameType, Message: "invalid frame type"}
	ErrImageTooLarge      = &Error{Kind: KindInvalidInput, Code: CodeImageTooLarge, Message: "image too large"}
	ErrRecordNotFound     = &Error{Kind: KindNotFound, Code: CodeRecordNotFound, Message: "generation not found"}
	ErrUnknownFrame       = &Error{Kind: KindInvalidInput, Code: CodeUnknownFrame, Message: "unknown frame"}
	ErrStorageConflict    = &Error{Kind: KindConflict, Code: CodeStorageConflict, Message: "storage key already exists"}
	ErrObjectNotFound     = &Error{Kind: KindNotFound, Code: CodeObjectNotFound, Message: "storage object not found"}
	ErrStaleTransition    = &Error{Kind: KindConflict, Code: CodeStaleTransition, Message: "record is no longer in the expected state"}
	ErrAuthentication     = &Error{Kind: KindAuthentication, Code: CodeAuthentication, Message: "inference credentials missing or rejected"}
	ErrRateLimited        = &Error{Kind: KindRateLimited, Code: CodeRateLimited, Message: "inference provider rate limited the request"}
	ErrTransientNetwork   = &Error{Kind: KindTransient, Code: CodeTransientNetwork, Message: "transient network failure"}
	ErrUpstreamProtocol   = &Error{Kind: KindUpstreamProtocol, Code: CodeUpstreamProtocol, Message: "malformed upstream response"}
	ErrStorageUnavailable = &Error{Kind: KindStorage, Code: CodeStorageUnavailable, Message: "storage unavailable"}
)

// KindOf returns the kind of the first typed error in the chain.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) && typed != nil {
		return typed.Kind
	}
	if err == nil {
		return ""
	}
	return KindInternal
}

// CodeOf returns the code of the first typed error in the chain.
func CodeOf(err error) Code {
	var typed *Error
	if errors.As(err, &typed) && typed != nil {
		return typed.Code
	}
	if err == nil {
		return ""
	}
	return CodeInternal
}

// IsRetriable reports whether the caller may retry after a backoff.
func IsRetriable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindRateLimited:
		return true
	default:
		return false
	}
}

// HTTPStatus maps an error to the externally observable status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case "":
		return http.StatusOK
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
