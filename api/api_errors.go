package api

import "errors"

var (
	MalformedResponseErr = errors.New("malformed backend response")
	EmptyCredentialErr   = errors.New("backend response missing token or user")
)
