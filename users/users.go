package users

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// User is the profile record returned by the backend alongside a session token.
// The backend may add fields over time; anything beyond the display fields below
// is carried opaquely in Extra so a round-trip through the persisted store does
// not drop it.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	// CreatedAt is kept verbatim; the backend emits a zoneless local
	// timestamp that does not survive a time.Time round trip.
	CreatedAt string `json:"createdAt,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// knownUserFields are stripped from the raw payload before populating Extra.
var knownUserFields = map[string]bool{
	"id":        true,
	"name":      true,
	"email":     true,
	"createdAt": true,
}

// DisplayName returns the best human-readable label for the user.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return u.Email
}

// Decode parses a backend user payload, keeping unrecognized fields in Extra.
func Decode(data []byte) (*User, error) {
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, errors.Wrap(err, "[users.Decode] unmarshal user")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "[users.Decode] unmarshal raw fields")
	}
	for k := range raw {
		if knownUserFields[k] {
			delete(raw, k)
		}
	}
	if len(raw) > 0 {
		u.Extra = raw
	}
	return &u, nil
}

// Encode serializes the user for the persisted store, merging Extra back in so
// the stored JSON matches what the backend originally sent.
func (u *User) Encode() ([]byte, error) {
	type alias User
	data, err := json.Marshal((*alias)(u))
	if err != nil {
		return nil, errors.Wrap(err, "[users.Encode] marshal user")
	}
	if len(u.Extra) == 0 {
		return data, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, errors.Wrap(err, "[users.Encode] remarshal user")
	}
	for k, v := range u.Extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.Wrap(err, "[users.Encode] marshal merged user")
	}
	return out, nil
}
