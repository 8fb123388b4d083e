// Package locosettings parses the repository settings reference string
// defined in spec §6 and builds the server endpoint URLs a repository
// needs to talk to its Locomote content API.
package locosettings

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// DefaultProtocol is used when the reference string omits a scheme.
	DefaultProtocol = "https"
	// DefaultHost is used when the reference string omits a host.
	DefaultHost = "locomote.sh"
	// DefaultPort is used when the reference string omits a port.
	DefaultPort = 443
	// DefaultBranch is used when the reference string omits a branch.
	DefaultBranch = "master"
)

// refPattern parses "(protocol:)?(username:password@)?(host(:port)?/)?account/repo(/branch)?"
// per spec §6.
var refPattern = regexp.MustCompile(
	`^(?:([a-zA-Z][a-zA-Z0-9+-]*):)?` + // 1: protocol (no dots, so "host:port/" is never taken as one)
		`(?:([^:@/]+):([^@/]+)@)?` + // 2: username, 3: password
		`(?:([^/:]+\.[^/:]+)(?::(\d+))?/)?` + // 4: host, 5: port (host must contain a dot)
		`([^/]+)/([^/]+)(?:/(.+))?$`, // 6: account, 7: repo, 8: branch
)

// Settings holds a repository's connection identity: the CMS host, account,
// repo, branch, and optional HTTP basic-auth credentials, per
// cms/LOCMSSettings.h in the Locomote-iOS source this spec is drawn from.
type Settings struct {
	Protocol  string
	Host      string
	Port      int
	Account   string
	Repo      string
	Branch    string
	AuthRealm string
	Username  string
	Password  string
}

// ParseRef parses a repository reference string into Settings, applying the
// defaults from spec §6.
func ParseRef(ref string) (*Settings, error) {
	m := refPattern.FindStringSubmatch(ref)
	if m == nil {
		return nil, fmt.Errorf("locosettings: %q is not a valid repository reference", ref)
	}

	s := &Settings{
		Protocol: DefaultProtocol,
		Host:     DefaultHost,
		Port:     DefaultPort,
		Branch:   DefaultBranch,
	}

	if m[1] != "" {
		s.Protocol = m[1]
	}

	s.Username = m[2]
	s.Password = m[3]

	if m[4] != "" {
		s.Host = m[4]
	}

	if m[5] != "" {
		port, err := strconv.Atoi(m[5])
		if err != nil {
			return nil, fmt.Errorf("locosettings: invalid port in %q: %w", ref, err)
		}

		s.Port = port
	}

	s.Account = m[6]
	s.Repo = m[7]

	if m[8] != "" {
		s.Branch = m[8]
	}

	return s, nil
}

// AuthorityName derives the authority name from Host and Port: the lowercased
// host when Port is the default (443), else "host:port".
func (s *Settings) AuthorityName() string {
	host := strings.ToLower(s.Host)
	if s.Port == DefaultPort {
		return host
	}

	return fmt.Sprintf("%s:%d", host, s.Port)
}

// APIBaseURL returns the base URL used as the HTTP authentication protection
// space for this repository.
func (s *Settings) APIBaseURL() string {
	if s.Port == DefaultPort || (s.Protocol == "http" && s.Port == 80) {
		return fmt.Sprintf("%s://%s", s.Protocol, s.Host)
	}

	return fmt.Sprintf("%s://%s:%d", s.Protocol, s.Host, s.Port)
}

// URLForAuthentication returns the login endpoint for this repository.
func (s *Settings) URLForAuthentication() string {
	return fmt.Sprintf("%s/auth/%s/%s/%s/login", s.APIBaseURL(), s.Account, s.Repo, s.Branch)
}

// URLForUpdates returns the updates-feed endpoint, with an optional
// "since" commit cursor.
func (s *Settings) URLForUpdates(since string) string {
	base := fmt.Sprintf("%s/updates/%s/%s/%s", s.APIBaseURL(), s.Account, s.Repo, s.Branch)
	if since == "" {
		return base
	}

	return base + "?since=" + since
}

// URLForFileset returns the bulk-download URL for a fileset category.
func (s *Settings) URLForFileset(category string) string {
	return fmt.Sprintf("%s/filesets/%s/%s/%s/%s.zip", s.APIBaseURL(), s.Account, s.Repo, s.Branch, category)
}

// URLForFile returns the direct file-bytes URL for a repo-relative path.
func (s *Settings) URLForFile(path string) string {
	return fmt.Sprintf("%s/files/%s/%s/%s/%s", s.APIBaseURL(), s.Account, s.Repo, s.Branch, path)
}

// URLForReset returns the reset endpoint for a category and client-visible-set token.
func (s *Settings) URLForReset(category, cvs string) string {
	return fmt.Sprintf("%s/reset/%s/%s/%s/%s?cvs=%s", s.APIBaseURL(), s.Account, s.Repo, s.Branch, category, cvs)
}
