package contracts

import (
	"errors"
)

var (
	// ErrInvalidRecord is returned when a transport record cannot be decoded
	ErrInvalidRecord = errors.New("invalid message record")
	// ErrUnsupportedVersion is returned for records from an incompatible protocol version
	ErrUnsupportedVersion = errors.New("unsupported message version")
)

// ErrorInfo describes the failure recorded on a message
type ErrorInfo struct {
	Message string  `json:"message"`
	Code    string  `json:"code"`
	Trace   *string `json:"trace"`
}

func (e *ErrorInfo) clone() *ErrorInfo {
	if e == nil {
		return nil
	}
	return &ErrorInfo{Message: e.Message, Code: e.Code, Trace: copyString(e.Trace)}
}
