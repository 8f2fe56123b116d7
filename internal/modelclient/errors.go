package modelclient

import "errors"

// Kind classifies a model-call failure. Callers branch on the kind to pick
// an HTTP status and a user-facing message; nothing here is retried
// internally.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindTimeout
	KindTruncated
	KindEmptyResponse
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTimeout:
		return "timeout"
	case KindTruncated:
		return "truncated"
	case KindEmptyResponse:
		return "empty_response"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from an error chain.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindUnknown
}

func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }
