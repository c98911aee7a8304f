package plan

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	id, err := ParseID("  381B4222-F694-41F0-9685-FF5BB260DF2E ")
	require.NoError(t, err)
	assert.Equal(t, balanced, id.String())
	assert.False(t, id.IsZero())
}

func TestParseID_Rejects(t *testing.T) {
	for _, in := range []string{
		"",
		"381b4222",
		"381b4222-f694-41f0-9685-ff5bb260df2",
		"381b4222-f694-41f0-9685-ff5bb260df2e0",
		"{381b4222-f694-41f0-9685-ff5bb260df2e}",
		"urn:uuid:381b4222-f694-41f0-9685-ff5bb260df2e",
		"381b4222f69441f09685ff5bb260df2e",
		"381b4222-f694-41f0-9685-ff5bb260dfzz",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseID(in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidID)

			var invalid *InvalidIDError
			assert.True(t, errors.As(err, &invalid))
		})
	}
}

func TestID_JSON(t *testing.T) {
	var v struct {
		Plan ID `json:"plan"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"plan":"a1841308-3541-4fab-bc81-f71556f20b4a"}`), &v))
	assert.Equal(t, powerSaver, v.Plan.String())

	err := json.Unmarshal([]byte(`{"plan":"bogus"}`), &v)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestSnapshotLookup(t *testing.T) {
	snap := Snapshot{Plans: []Plan{{ID: MustParseID(balanced), Name: "Balanced"}}}

	p, ok := snap.Lookup(MustParseID(balanced))
	require.True(t, ok)
	assert.Equal(t, "Balanced", p.Name)

	_, ok = snap.Lookup(MustParseID(powerSaver))
	assert.False(t, ok)
}
