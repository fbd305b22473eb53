package protocol

import (
	"fmt"
	"strconv"
)

// CloseCode a closing code
type CloseCode int

const (
	NormalClosure                    CloseCode = 1000
	GoingAway                        CloseCode = 1001
	ProtocolError                    CloseCode = 1002
	NoStatusReceived                 CloseCode = 1005
	AbnormalClosure                  CloseCode = 1006
	MessageTooBig                    CloseCode = 1009
	UnexpectedCondition              CloseCode = 1011
	InternalServerError              CloseCode = 4500
	InternalClientError              CloseCode = 4005
	BadRequest                       CloseCode = 4400
	BadResponse                      CloseCode = 4004
	Unauthorized                     CloseCode = 4401
	Forbidden                        CloseCode = 4403
	SubprotocolNotAcceptable         CloseCode = 4406
	ConnectionInitialisationTimeout  CloseCode = 4408
	ConnectionAcknowledgementTimeout CloseCode = 4504
	SubscriberAlreadyExists          CloseCode = 4409
	TooManyInitialisationRequests    CloseCode = 4429
)

func (c CloseCode) String() string {
	return strconv.Itoa(int(c))
}

// CloseError is a protocol violation that terminates the connection
type CloseError struct {
	Code   CloseCode
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Reason)
}

// NewCloseError creates a close error
func NewCloseError(code CloseCode, format string, v ...interface{}) *CloseError {
	return &CloseError{
		Code:   code,
		Reason: fmt.Sprintf(format, v...),
	}
}

var (
	ErrTooManyInitialisationRequests = &CloseError{Code: TooManyInitialisationRequests, Reason: "Too many initialisation requests"}
	ErrNotInitialized                = &CloseError{Code: Unauthorized, Reason: "Unauthorized"}
	ErrInitialisationTimeout         = &CloseError{Code: ConnectionInitialisationTimeout, Reason: "Connection initialisation timeout"}
	ErrForbidden                     = &CloseError{Code: Forbidden, Reason: "Forbidden"}
	ErrExecutionFailed               = &CloseError{Code: InternalServerError, Reason: "Subscription execution error"}
)
