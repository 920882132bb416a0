/*
 * Copyright (c) 2018 VMware, Inc.
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of this software and
 * associated documentation files (the "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is furnished to do
 * so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all copies or substantial
 * portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT
 * NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
 * WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 */
package common

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is unified definition of numerical error codes
type ErrorCode int32

// pre-defined error codes
const (
	// System Wide 41000 - 42000
	KinesisClientLibError ErrorCode = 41000

	// KinesisClientLibrary Retryable Errors 41001 - 41100
	KinesisClientLibRetryableError ErrorCode = 41001
	KinesisClientLibIOError        ErrorCode = 41002
	ThrottlingError                ErrorCode = 41003

	// KinesisClientLibrary NonRetryable Errors 41100 - 41200
	KinesisClientLibNonRetryableException ErrorCode = 41100
	InvalidStateError                     ErrorCode = 41101
	ShutdownError                         ErrorCode = 41102
	IllegalArgumentError                  ErrorCode = 41103

	// Leasing errors 41200 - 41300
	LeasingError                      ErrorCode = 41200
	LeasingInvalidStateError          ErrorCode = 41201
	LeasingDependencyError            ErrorCode = 41202
	LeasingProvisionedThroughputError ErrorCode = 41203
	LeaseLostError                    ErrorCode = 41204
	LineageError                      ErrorCode = 41205
)

var errorMap = map[ErrorCode]ClientLibraryError{
	KinesisClientLibError: {ErrorCode: KinesisClientLibError, Retryable: true, Status: http.StatusServiceUnavailable, Msg: "Top level error of Kinesis Client Library"},

	KinesisClientLibRetryableError: {ErrorCode: KinesisClientLibRetryableError, Retryable: true, Status: http.StatusServiceUnavailable, Msg: "Retryable exceptions (e.g. transient errors). The request/operation is expected to succeed upon (back off and) retry."},
	KinesisClientLibIOError:        {ErrorCode: KinesisClientLibIOError, Retryable: true, Status: http.StatusServiceUnavailable, Msg: "Error in reading/writing information (e.g. shard information from Kinesis may not be current/complete)."},
	ThrottlingError:                {ErrorCode: ThrottlingError, Retryable: true, Status: http.StatusTooManyRequests, Msg: "Requests are throttled by a service (e.g. DynamoDB when storing a checkpoint)."},

	KinesisClientLibNonRetryableException: {ErrorCode: KinesisClientLibNonRetryableException, Retryable: false, Status: http.StatusServiceUnavailable, Msg: "Non-retryable exceptions. Simply retrying the same request/operation is not expected to succeed."},
	InvalidStateError:                     {ErrorCode: InvalidStateError, Retryable: false, Status: http.StatusServiceUnavailable, Msg: "Kinesis Library has issues with internal state (e.g. DynamoDB table is not found)."},
	ShutdownError:                         {ErrorCode: ShutdownError, Retryable: false, Status: http.StatusServiceUnavailable, Msg: "The RecordProcessor instance has been shutdown (e.g. and attempts a checkpoint)."},
	IllegalArgumentError:                  {ErrorCode: IllegalArgumentError, Retryable: false, Status: http.StatusBadRequest, Msg: "Invalid argument."},

	LeasingError:                      {ErrorCode: LeasingError, Retryable: true, Status: http.StatusServiceUnavailable, Msg: "Top-level error type for the leasing code."},
	LeasingInvalidStateError:          {ErrorCode: LeasingInvalidStateError, Retryable: true, Status: http.StatusServiceUnavailable, Msg: "Error in a lease operation has failed because DynamoDB is an invalid state"},
	LeasingDependencyError:            {ErrorCode: LeasingDependencyError, Retryable: true, Status: http.StatusServiceUnavailable, Msg: "Error in a lease operation has failed because a dependency of the leasing system has failed."},
	LeasingProvisionedThroughputError: {ErrorCode: LeasingProvisionedThroughputError, Retryable: false, Status: http.StatusServiceUnavailable, Msg: "Error in a lease operation has failed due to lack of provisioned throughput for a DynamoDB table."},
	LeaseLostError:                    {ErrorCode: LeaseLostError, Retryable: false, Status: http.StatusConflict, Msg: "The lease is no longer held by this worker (the concurrency token or lease counter moved on)."},
	LineageError:                      {ErrorCode: LineageError, Retryable: false, Status: http.StatusConflict, Msg: "Shard lineage recorded in the lease table is inconsistent."},
}

// ClientLibraryError is unified error
type ClientLibraryError struct {
	// ErrorCode is the numerical error code.
	ErrorCode `json:"code"`
	// Retryable is a bool flag to indicate the whether the error is retryable or not.
	Retryable bool `json:"tryable"`
	// Status is the HTTP status code.
	Status int `json:"status"`
	// Msg provides a terse description of the error. Its value is defined in errorMap.
	Msg string `json:"msg"`
	// Detail provides a detailed description of the error. Its value is set using WithDetail.
	Detail string `json:"detail"`

	cause error
}

// Error implements error
func (e *ClientLibraryError) Error() string {
	msg := fmt.Sprintf("error %d: %s", e.ErrorCode, e.Msg)
	if e.Detail != "" {
		msg += " " + e.Detail
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause, if any.
func (e *ClientLibraryError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a ClientLibraryError carrying the same code.
func (e *ClientLibraryError) Is(target error) bool {
	var t *ClientLibraryError
	if !errors.As(target, &t) {
		return false
	}
	return t.ErrorCode == e.ErrorCode
}

// MakeErr makes an error with default message.
func (c ErrorCode) MakeErr() *ClientLibraryError {
	e, ok := errorMap[c]
	if !ok {
		e = errorMap[KinesisClientLibError]
		e.ErrorCode = c
	}
	return &e
}

// WithDetail sets the detailed description of the error.
func (e *ClientLibraryError) WithDetail(detail string) *ClientLibraryError {
	e.Detail = detail
	return e
}

// WithCause attaches the error that triggered this one.
func (e *ClientLibraryError) WithCause(cause error) *ClientLibraryError {
	e.cause = cause
	return e
}

// IsErrorCode checks whether any error in err's chain is a ClientLibraryError with the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	var e *ClientLibraryError
	if !errors.As(err, &e) {
		return false
	}
	for {
		if e.ErrorCode == code {
			return true
		}
		if !errors.As(e.cause, &e) {
			return false
		}
	}
}
