package domain

import (
	"errors"
	"fmt"
)

// ExitCode is the result code of processing one message. Zero means success.
type ExitCode int32

// Substrate exit codes.
const (
	ExitOK            ExitCode = 0
	ExitFatal         ExitCode = -1 // contract failed with a non-protocol error
	ExitNoContract    ExitCode = -2 // destination has no code and the message was bounceable
	ExitCellUnderflow ExitCode = 9
	ExitOutOfGas      ExitCode = 13
	ExitActionFunds   ExitCode = 37
)

// Jetton exit codes.
const (
	ExitUnauthorizedMintRequest          ExitCode = 73
	ExitUnauthorizedBurnRequest          ExitCode = 74
	ExitUnauthorizedChangeAdminRequest   ExitCode = 76
	ExitUnauthorizedChangeContentRequest ExitCode = 77
	ExitWrongWorkchain                   ExitCode = 333
	ExitUnauthorizedTransfer             ExitCode = 705
	ExitNotEnoughJettons                 ExitCode = 706
	ExitUnauthorizedIncomingTransfer     ExitCode = 707
	ExitMalformedForwardPayload          ExitCode = 708
	ExitNotEnoughTons                    ExitCode = 709
	ExitUnknownActionBounced             ExitCode = 0xfff0
	ExitUnknownAction                    ExitCode = 0xffff
)

// Registry exit codes.
const (
	ExitAlreadyExists  ExitCode = 400
	ExitNotOwner       ExitCode = 403
	ExitNotFound       ExitCode = 404
	ExitSelfMembership ExitCode = 4000
	ExitNotMember      ExitCode = 4041
)

// ExitError aborts message processing with an exit code.
type ExitError struct {
	Code ExitCode
	Msg  string
}

func (e *ExitError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return fmt.Sprintf("exit code %d: %s", e.Code, e.Msg)
}

// Abort returns an *ExitError with a formatted message.
func Abort(code ExitCode, format string, args ...any) error {
	return &ExitError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// ExitCodeOf extracts the exit code carried by err, if any.
func ExitCodeOf(err error) (ExitCode, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return ExitOK, false
}
