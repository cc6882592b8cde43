package stream

import (
	"github.com/himanishpuri/sonicres/pkg/models"
)

// Outcome is the single terminal result of a session. The zero value is not
// meaningful; build one with Success or Failure.
type Outcome struct {
	id  models.Identification
	err *Error
}

// Success wraps an identification, normalizing its confidence into [0, 1].
func Success(id models.Identification) Outcome {
	id.Confidence = models.NormalizeConfidence(id.Confidence)
	return Outcome{id: id}
}

// Failure builds an error outcome. message is what the client will see.
func Failure(code Code, message string, cause error) Outcome {
	return Outcome{err: newError(code, message, cause)}
}

func (o Outcome) OK() bool { return o.err == nil }

func (o Outcome) Identification() models.Identification { return o.id }

// Err is nil for a success.
func (o Outcome) Err() *Error { return o.err }

// Code is "ok" for a success and the error code otherwise.
func (o Outcome) Code() string {
	if o.err == nil {
		return "ok"
	}
	return string(o.err.Code)
}

// Message renders the outcome as its wire message.
func (o Outcome) Message() any {
	if o.err != nil {
		return ErrorMessage{Type: TypeError, Message: o.err.Message}
	}
	return ResultMessage{Type: TypeResult, Data: ResultData{
		TrackName:  o.id.TrackName,
		Artist:     o.id.Artist,
		Confidence: o.id.Confidence,
	}}
}
