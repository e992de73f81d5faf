package optional

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type payload struct {
	Energy Value[int]    `json:"energy,omitzero"`
	Notes  Value[string] `json:"notes,omitzero"`
}

func TestValue_DistinguishesAbsentNullAndValue(t *testing.T) {
	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"notes":null}`), &p))
	require.False(t, p.Energy.IsSet())
	require.True(t, p.Notes.IsSet())
	require.True(t, p.Notes.IsNull())

	require.NoError(t, json.Unmarshal([]byte(`{"energy":50}`), &p))
	got, ok := p.Energy.Get()
	require.True(t, ok)
	require.Equal(t, 50, got)
}

func TestValue_MarshalOmitsAbsentKeepsNull(t *testing.T) {
	out, err := json.Marshal(payload{Notes: Null[string]()})
	require.NoError(t, err)
	require.JSONEq(t, `{"notes":null}`, string(out))

	out, err = json.Marshal(payload{Energy: Of(25)})
	require.NoError(t, err)
	require.JSONEq(t, `{"energy":25}`, string(out))
}

func TestValue_Helpers(t *testing.T) {
	var absent Value[int]
	require.Equal(t, 7, absent.Or(7))
	require.Nil(t, absent.Ptr())
	require.True(t, FromPtr[int](nil).IsNull())

	n := 3
	v := FromPtr(&n)
	require.Equal(t, 3, *v.Ptr())
	require.False(t, v.IsZero())
}
