package repoid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "account and repo", raw: "acme/site", want: "acme/site/master"},
		{name: "account repo and branch", raw: "acme/site/staging", want: "acme/site/staging"},
		{name: "leading and trailing slashes trimmed", raw: "/acme/site/", want: "acme/site/master"},
		{name: "missing repo", raw: "acme", wantErr: true},
		{name: "too many segments", raw: "acme/site/staging/extra", wantErr: true},
		{name: "empty repo segment", raw: "acme//staging", wantErr: true},
		{name: "empty string", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(tt.raw)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestCanonicalID_MountPath(t *testing.T) {
	assert.Equal(t, "acme/site", Must("acme/site").MountPath())
	assert.Equal(t, "acme/site/~staging", Must("acme/site/staging").MountPath())
}

func TestCanonicalID_TextMarshal(t *testing.T) {
	cid := Must("acme/site/staging")

	text, err := cid.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "acme/site/staging", string(text))

	var roundTrip CanonicalID
	require.NoError(t, roundTrip.UnmarshalText(text))
	assert.True(t, cid.Equal(roundTrip))
}

func TestCanonicalID_IsZero(t *testing.T) {
	var zero CanonicalID
	assert.True(t, zero.IsZero())
	assert.False(t, Must("acme/site").IsZero())
}
