package provider

import "errors"

var (
	UnknownProviderErr = errors.New("unknown provider")
	LoginCancelledErr  = errors.New("login cancelled")
	FlowUnavailableErr = errors.New("provider flow unavailable")
	StateMismatchErr   = errors.New("authorization state mismatch")
)
