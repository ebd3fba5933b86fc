package mapqlift

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/grailbio/base/errors"
	pkgerrors "github.com/pkg/errors"
)

// ErrorKind classifies pipeline failures.
type ErrorKind int

const (
	// Unknown is a sentinel for errors not produced by this package.
	Unknown ErrorKind = iota
	// InputOpenError: the alignment or region file could not be opened.
	InputOpenError
	// RegionParseError: a malformed region-file line or region string.
	RegionParseError
	// CodecReadError: the alignment decoder failed mid-stream.
	CodecReadError
	// CodecWriteError: the alignment encoder or output file failed.
	CodecWriteError
	// OutputOpenError: the output file could not be created.
	OutputOpenError
	// ThreadCommunicationError: a queue operation was cancelled before the
	// stream ended.
	ThreadCommunicationError
	// OrderingInvariantViolation: a sequence id was lost or records went
	// missing between stages.
	OrderingInvariantViolation
	// AllocationFailure: a stage ran out of memory.
	AllocationFailure
	// InternalError: a stage panicked.
	InternalError
)

var kindNames = [...]string{
	Unknown:                    "unknown error",
	InputOpenError:             "input open error",
	RegionParseError:           "region parse error",
	CodecReadError:             "codec read error",
	CodecWriteError:            "codec write error",
	OutputOpenError:            "output open error",
	ThreadCommunicationError:   "thread communication error",
	OrderingInvariantViolation: "ordering invariant violation",
	AllocationFailure:          "allocation failure",
	InternalError:              "internal error",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
	return kindNames[k]
}

// Error is returned by the pipeline.  It names the stage and, when known, the
// file that caused the failure.
type Error struct {
	Kind ErrorKind
	// Stage is one of "setup", "reader", "classifier", "writer", "pipeline"
	// or "metrics".
	Stage string
	// Path is the file involved, if any.
	Path string
	Err  error
}

func (e *Error) Error() string {
	b := strings.Builder{}
	b.WriteString("mapqlift ")
	b.WriteString(e.Stage)
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Cause implements the github.com/pkg/errors causer interface.
func (e *Error) Cause() error { return e.Err }

func newError(kind ErrorKind, stage, path string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Path: path, Err: err}
}

// KindOf returns the kind of the first *Error found in err's chain, or Unknown.
func KindOf(err error) ErrorKind {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.Kind
		case *errors.Error:
			err = e.Err
		case interface{ Unwrap() error }:
			err = e.Unwrap()
		case interface{ Cause() error }:
			err = e.Cause()
		default:
			return Unknown
		}
	}
	return Unknown
}

// cancelled reports a queue operation interrupted by cancellation.
func cancelled(stage string, err error) *Error {
	return newError(ThreadCommunicationError, stage, "", errors.E(errors.Canceled, err))
}

// panicError converts a recovered panic value into an *Error.
func panicError(stage string, v interface{}) *Error {
	if re, ok := v.(runtime.Error); ok {
		msg := re.Error()
		if strings.Contains(msg, "makeslice") || strings.Contains(msg, "out of memory") {
			return newError(AllocationFailure, stage, "", re)
		}
		return newError(InternalError, stage, "", re)
	}
	if err, ok := v.(error); ok {
		return newError(InternalError, stage, "", err)
	}
	return newError(InternalError, stage, "", pkgerrors.Errorf("panic: %v", v))
}

// recoverStage is deferred by each stage goroutine to turn a panic into an
// error result.
func recoverStage(stage string, errp *error) {
	if v := recover(); v != nil {
		*errp = panicError(stage, v)
	}
}
