package phone

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	n := NewNormalizer(" us ")
	tests := []struct {
		name string
		raw  string
		want string
		err  error
		// rejected accepts either rejection reason
		rejected bool
	}{
		{name: "national with dashes", raw: "201-555-0123", want: "+12015550123"},
		{name: "already e164", raw: "+12015550123", want: "+12015550123"},
		{name: "surrounding whitespace", raw: "  (201) 555 0123\t", want: "+12015550123"},
		{name: "double zero prefix", raw: "00441212345678", want: "+441212345678"},
		{name: "foreign e164 ignores region", raw: "+44 121 234 5678", want: "+441212345678"},
		{name: "spreadsheet float", raw: "12015550123.0", want: "+12015550123"},
		{name: "empty", raw: "   ", err: ErrEmpty},
		{name: "garbage", raw: "call me", err: ErrUnparseable},
		{name: "too short", raw: "123", rejected: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := n.Normalize(tt.raw)
			if tt.rejected {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalid) || errors.Is(err, ErrUnparseable), "err = %v", err)
				return
			}
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeWithoutRegionRequiresPlus(t *testing.T) {
	t.Parallel()
	n := NewNormalizer("")
	_, err := n.Normalize("201-555-0123")
	require.Error(t, err)

	got, err := n.Normalize("+1 201 555 0123")
	require.NoError(t, err)
	assert.Equal(t, "+12015550123", got)
}

func TestIdentityCarriesFirstName(t *testing.T) {
	t.Parallel()
	id, err := NewNormalizer("US").Identity("201 555 0123", "  Ada ")
	require.NoError(t, err)
	assert.Equal(t, Identity{Key: "+12015550123", FirstName: "Ada", Raw: "201 555 0123"}, id)
}

func TestDedupAdmitsSameCanonicalKeyOnce(t *testing.T) {
	t.Parallel()
	n := NewNormalizer("US")
	d := NewDedupSet()

	var admitted, skipped int
	for _, raw := range []string{"201-555-0123", "+12015550123", "+441212345678", "(201) 555-0123"} {
		key, err := n.Normalize(raw)
		require.NoError(t, err)
		if d.Admit(key) {
			admitted++
		} else {
			skipped++
		}
	}
	assert.Equal(t, 2, admitted)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, []string{"+12015550123", "+441212345678"}, d.Keys())
}
