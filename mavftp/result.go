/*
MIT License

Copyright (c) 2024 The Mavftp Authors.

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package mavftp

import "fmt"

// ErrorCode is the outcome of one logical operation.
// Values below 64 travel on the wire in Nack payloads, the rest are produced locally.
type ErrorCode uint8

const (
	ErrNone                ErrorCode = 0
	ErrFail                ErrorCode = 1
	ErrFailErrno           ErrorCode = 2
	ErrInvalidDataSize     ErrorCode = 3
	ErrInvalidSession      ErrorCode = 4
	ErrNoSessionsAvailable ErrorCode = 5
	ErrEndOfFile           ErrorCode = 6
	ErrUnknownCommand      ErrorCode = 7
	ErrFileExists          ErrorCode = 8
	ErrFileProtected       ErrorCode = 9
	ErrFileNotFound        ErrorCode = 10

	ErrNoErrorCodeInPayload       ErrorCode = 64
	ErrNoErrorCodeInNack          ErrorCode = 65
	ErrNoFilesystemErrorInPayload ErrorCode = 66
	ErrInvalidErrorCode           ErrorCode = 67
	ErrPayloadTooLarge            ErrorCode = 68
	ErrInvalidOpcode              ErrorCode = 69
	ErrInvalidArguments           ErrorCode = 70
	ErrPutAlreadyInProgress       ErrorCode = 71
	ErrFailToOpenLocalFile        ErrorCode = 72
	ErrRemoteReplyTimeout         ErrorCode = 73
	ErrMalformedReply             ErrorCode = 74
	ErrCancelled                  ErrorCode = 75
)

var wireErrorReasons = map[ErrorCode]string{
	ErrFail:                "generic error",
	ErrInvalidDataSize:     "invalid data size",
	ErrInvalidSession:      "session is not currently open",
	ErrNoSessionsAvailable: "no sessions available",
	ErrEndOfFile:           "offset past end of file",
	ErrUnknownCommand:      "unknown command",
	ErrFileExists:          "file/directory already exists",
	ErrFileProtected:       "file/directory is protected",
	ErrFileNotFound:        "file/directory not found",
}

var localErrorReasons = map[ErrorCode]string{
	ErrNoErrorCodeInPayload:       "payload contains no error code",
	ErrNoErrorCodeInNack:          "no error code",
	ErrNoFilesystemErrorInPayload: "file-system error missing in payload",
	ErrPayloadTooLarge:            "payload is too long",
	ErrInvalidArguments:           "invalid arguments",
	ErrPutAlreadyInProgress:       "put already in progress",
	ErrFailToOpenLocalFile:        "failed to open local file",
	ErrRemoteReplyTimeout:         "remote reply timeout",
	ErrMalformedReply:             "malformed reply record",
	ErrCancelled:                  "operation cancelled",
}

// FormatMessage renders the display string of an outcome.
// detail is the errno for ErrFailErrno, the offending byte for ErrInvalidErrorCode
// and the offending opcode for ErrInvalidOpcode; it is ignored otherwise.
func FormatMessage(operationName string, code ErrorCode, detail uint8) string {
	switch code {
	case ErrNone:
		return fmt.Sprintf("%s succeeded", operationName)
	case ErrFailErrno:
		return fmt.Sprintf("%s failed, system error %d", operationName, detail)
	case ErrInvalidErrorCode:
		return fmt.Sprintf("%s failed, invalid error code %d", operationName, detail)
	case ErrInvalidOpcode:
		return fmt.Sprintf("%s failed, invalid opcode %d", operationName, detail)
	}
	if reason, ok := wireErrorReasons[code]; ok {
		return fmt.Sprintf("%s failed, %s", operationName, reason)
	}
	if reason, ok := localErrorReasons[code]; ok {
		return fmt.Sprintf("%s failed, %s", operationName, reason)
	}
	return fmt.Sprintf("%s failed, unknown error %d in display", operationName, uint8(code))
}

// Result is the outcome of one logical operation. It is immutable once returned.
type Result struct {
	OperationName    string
	ErrorCode        ErrorCode
	SystemError      uint8
	InvalidErrorCode uint8
	InvalidOpcode    uint8
}

func newResult(operationName string, code ErrorCode) *Result {
	return &Result{OperationName: operationName, ErrorCode: code}
}

// OK reports whether the operation succeeded.
func (r *Result) OK() bool {
	return r.ErrorCode == ErrNone
}

func (r *Result) detail() uint8 {
	switch r.ErrorCode {
	case ErrFailErrno:
		return r.SystemError
	case ErrInvalidErrorCode:
		return r.InvalidErrorCode
	case ErrInvalidOpcode:
		return r.InvalidOpcode
	}
	return 0
}

// Message returns the human readable outcome, e.g. "ListDirectory failed, file/directory not found".
func (r *Result) Message() string {
	return FormatMessage(r.OperationName, r.ErrorCode, r.detail())
}

// Err returns nil on success and a *ResultError otherwise.
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	return &ResultError{Result: r}
}

// Display writes the message to the logger at a level matching the outcome.
func (r *Result) Display(logger Logger) {
	if logger == nil {
		return
	}
	if r.OK() {
		logger.Info("%s", r.Message())
	} else {
		logger.Error("%s", r.Message())
	}
}

// ResultError wraps a failed Result so it can travel as an error.
type ResultError struct {
	Result *Result
}

func (e *ResultError) Error() string {
	return e.Result.Message()
}

// Is matches another *ResultError carrying the same error code.
func (e *ResultError) Is(target error) bool {
	t, ok := target.(*ResultError)
	return ok && t.Result != nil && t.Result.ErrorCode == e.Result.ErrorCode
}

// decodeReply turns an Ack or Nack into a Result following the Nack payload rules.
func decodeReply(operationName string, op *FTPOp) *Result {
	result := newResult(operationName, ErrNone)
	switch op.Opcode {
	case OpAck:
		return result
	case OpNack:
	default:
		result.ErrorCode = ErrInvalidOpcode
		result.InvalidOpcode = uint8(op.Opcode)
		return result
	}

	payload := op.Payload
	switch {
	case len(payload) == 0:
		result.ErrorCode = ErrNoErrorCodeInPayload
	case len(payload) > 2:
		result.ErrorCode = ErrPayloadTooLarge
	case ErrorCode(payload[0]) == ErrFailErrno:
		if len(payload) < 2 {
			result.ErrorCode = ErrNoFilesystemErrorInPayload
		} else {
			result.ErrorCode = ErrFailErrno
			result.SystemError = payload[1]
		}
	case ErrorCode(payload[0]) == ErrNone:
		result.ErrorCode = ErrNoErrorCodeInNack
	default:
		code := ErrorCode(payload[0])
		if _, ok := wireErrorReasons[code]; ok {
			result.ErrorCode = code
		} else {
			result.ErrorCode = ErrInvalidErrorCode
			result.InvalidErrorCode = payload[0]
		}
	}
	return result
}
