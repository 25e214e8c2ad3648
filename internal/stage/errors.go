package stage

import (
	"errors"
	"fmt"
)

// Name identifies a pipeline stage.
type Name string

const (
	StageIngest            Name = "ingest"
	StageRefreshEmbeddings Name = "refresh_embeddings"
	StageChat              Name = "chat"
	StageGenerateBDD       Name = "generate_bdd"
	StageExecuteBDD        Name = "execute_bdd"
)

// Kind classifies a stage failure.
type Kind int

const (
	// KindTransport covers unreachable services and non-2xx statuses.
	KindTransport Kind = iota
	// KindMalformed covers 2xx responses missing the expected fields.
	KindMalformed
)

var (
	ErrTransport         = errors.New("transport failure")
	ErrMalformedResponse = errors.New("malformed response")
)

// StageError is returned by every Client method on failure.
type StageError struct {
	Stage  Name
	Kind   Kind
	Status int // HTTP status, 0 when no response was received
	Cause  error
}

func (e *StageError) Error() string {
	switch {
	case e.Kind == KindMalformed:
		return fmt.Sprintf("%s: malformed response: %v", e.Stage, e.Cause)
	case e.Status != 0:
		return fmt.Sprintf("%s: service returned %d: %v", e.Stage, e.Status, e.Cause)
	default:
		return fmt.Sprintf("%s: %v", e.Stage, e.Cause)
	}
}

func (e *StageError) Unwrap() []error {
	kind := ErrTransport
	if e.Kind == KindMalformed {
		kind = ErrMalformedResponse
	}
	return []error{kind, e.Cause}
}

func transportErr(stage Name, status int, cause error) *StageError {
	return &StageError{Stage: stage, Kind: KindTransport, Status: status, Cause: cause}
}

func malformedErr(stage Name, format string, args ...any) *StageError {
	return &StageError{Stage: stage, Kind: KindMalformed, Cause: fmt.Errorf(format, args...)}
}
