package locosettings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want Settings
	}{
		{
			name: "account and repo only",
			ref:  "acme/site",
			want: Settings{Protocol: "https", Host: "locomote.sh", Port: 443, Account: "acme", Repo: "site", Branch: "master"},
		},
		{
			name: "with branch",
			ref:  "acme/site/staging",
			want: Settings{Protocol: "https", Host: "locomote.sh", Port: 443, Account: "acme", Repo: "site", Branch: "staging"},
		},
		{
			name: "full reference",
			ref:  "http:user:pass@cms.example.com:8080/acme/site/staging",
			want: Settings{
				Protocol: "http", Host: "cms.example.com", Port: 8080,
				Account: "acme", Repo: "site", Branch: "staging",
				Username: "user", Password: "pass",
			},
		},
		{
			name: "host without credentials",
			ref:  "cms.example.com/acme/site",
			want: Settings{Protocol: "https", Host: "cms.example.com", Port: 443, Account: "acme", Repo: "site", Branch: "master"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRef(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseRef_Invalid(t *testing.T) {
	_, err := ParseRef("")
	assert.Error(t, err)
}

func TestSettings_AuthorityName(t *testing.T) {
	s, err := ParseRef("acme/site")
	require.NoError(t, err)
	assert.Equal(t, "locomote.sh", s.AuthorityName())

	s, err = ParseRef("cms.example.com:8080/acme/site")
	require.NoError(t, err)
	assert.Equal(t, "cms.example.com:8080", s.AuthorityName())
}

func TestSettings_URLBuilders(t *testing.T) {
	s, err := ParseRef("cms.example.com/acme/site/staging")
	require.NoError(t, err)

	assert.Equal(t, "https://cms.example.com/auth/acme/site/staging/login", s.URLForAuthentication())
	assert.Equal(t, "https://cms.example.com/updates/acme/site/staging?since=c1", s.URLForUpdates("c1"))
	assert.Equal(t, "https://cms.example.com/updates/acme/site/staging", s.URLForUpdates(""))
	assert.Equal(t, "https://cms.example.com/filesets/acme/site/staging/pages.zip", s.URLForFileset("pages"))
	assert.Equal(t, "https://cms.example.com/files/acme/site/staging/a/b.txt", s.URLForFile("a/b.txt"))
	assert.Equal(t, "https://cms.example.com/reset/acme/site/staging/pages?cvs=v7", s.URLForReset("pages", "v7"))
}
