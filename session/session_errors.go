package session

import "errors"

var NoPersistedSessionErr = errors.New("no persisted session")
