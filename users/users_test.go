package users_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mychefai/go-chef-client/users"
)

func TestDecodeKnownFields(t *testing.T) {
	u, err := users.Decode([]byte(`{"id":1,"name":"Kim","email":"kim@example.com"}`))
	require.NoError(t, err)
	require.Equal(t, int64(1), u.ID)
	require.Equal(t, "Kim", u.Name)
	require.Equal(t, "kim@example.com", u.Email)
	require.Empty(t, u.Extra)
}

func TestDecodePreservesUnknownFields(t *testing.T) {
	payload := []byte(`{"id":7,"name":"Lee","healthGoal":"bulk","dailyCalories":2800}`)
	u, err := users.Decode(payload)
	require.NoError(t, err)
	require.Len(t, u.Extra, 2)
	require.JSONEq(t, `"bulk"`, string(u.Extra["healthGoal"]))
}

func TestEncodeRoundTrip(t *testing.T) {
	payload := []byte(`{"id":7,"name":"Lee","email":"lee@example.com","healthGoal":"bulk"}`)
	u, err := users.Decode(payload)
	require.NoError(t, err)

	out, err := u.Encode()
	require.NoError(t, err)
	require.JSONEq(t, string(payload), string(out))

	again, err := users.Decode(out)
	require.NoError(t, err)
	require.Equal(t, u.ID, again.ID)
	require.Equal(t, u.Name, again.Name)
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	_, err := users.Decode([]byte(`{broken`))
	require.Error(t, err)
}

func TestDisplayNameFallsBackToEmail(t *testing.T) {
	u := &users.User{Email: "kim@example.com"}
	require.Equal(t, "kim@example.com", u.DisplayName())

	u.Name = "Kim"
	require.Equal(t, "Kim", u.DisplayName())
}
