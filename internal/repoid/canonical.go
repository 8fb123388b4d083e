// Package repoid defines the canonical identifier for a mounted repository:
// an "account/repo[/branch]" triple, as used in spec §3 and §6.
package repoid

import (
	"encoding"
	"fmt"
	"strings"
)

// defaultBranch is used when a canonical ID omits the branch segment.
const defaultBranch = "master"

// CanonicalID is a mount-path identifier in the form "account/repo/branch".
// The zero value represents an absent ID.
type CanonicalID struct {
	account string
	repo    string
	branch  string
}

// New parses "account/repo[/branch]" into a CanonicalID, defaulting branch
// to "master" when omitted. Returns an error if account or repo is empty,
// or if more than three segments are given.
func New(raw string) (CanonicalID, error) {
	parts := strings.Split(strings.Trim(raw, "/"), "/")

	if len(parts) < 2 || len(parts) > 3 {
		return CanonicalID{}, fmt.Errorf("repoid: %q must be \"account/repo\" or \"account/repo/branch\"", raw)
	}

	account, repo := parts[0], parts[1]
	if account == "" || repo == "" {
		return CanonicalID{}, fmt.Errorf("repoid: %q has an empty account or repo segment", raw)
	}

	branch := defaultBranch
	if len(parts) == 3 {
		if parts[2] == "" {
			return CanonicalID{}, fmt.Errorf("repoid: %q has an empty branch segment", raw)
		}

		branch = parts[2]
	}

	return CanonicalID{account: account, repo: repo, branch: branch}, nil
}

// Must is like New but panics on invalid input. Use only in tests and
// initialization code where the value is known-good.
func Must(raw string) CanonicalID {
	cid, err := New(raw)
	if err != nil {
		panic(err)
	}

	return cid
}

// Construct builds a CanonicalID from separate parts, defaulting branch to
// "master" when empty.
func Construct(account, repo, branch string) (CanonicalID, error) {
	if account == "" || repo == "" {
		return CanonicalID{}, fmt.Errorf("repoid: account and repo must be non-empty")
	}

	if branch == "" {
		branch = defaultBranch
	}

	return CanonicalID{account: account, repo: repo, branch: branch}, nil
}

// String returns "account/repo/branch".
func (c CanonicalID) String() string {
	if c.IsZero() {
		return ""
	}

	return c.account + "/" + c.repo + "/" + c.branch
}

// MountPath returns the mount-path form used in content:// URLs: "account/repo"
// when branch is the default "master", else "account/repo/~branch" per spec §3.
func (c CanonicalID) MountPath() string {
	if c.IsZero() {
		return ""
	}

	if c.branch == defaultBranch {
		return c.account + "/" + c.repo
	}

	return c.account + "/" + c.repo + "/~" + c.branch
}

// IsZero reports whether this is the zero-value CanonicalID.
func (c CanonicalID) IsZero() bool {
	return c.account == "" && c.repo == ""
}

// Equal reports whether two CanonicalIDs are identical.
func (c CanonicalID) Equal(other CanonicalID) bool {
	return c.account == other.account && c.repo == other.repo && c.branch == other.branch
}

// Account returns the account segment.
func (c CanonicalID) Account() string { return c.account }

// Repo returns the repo segment.
func (c CanonicalID) Repo() string { return c.repo }

// Branch returns the branch segment ("master" if not set explicitly).
func (c CanonicalID) Branch() string { return c.branch }

// MarshalText implements encoding.TextMarshaler.
func (c CanonicalID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CanonicalID) UnmarshalText(text []byte) error {
	cid, err := New(string(text))
	if err != nil {
		return err
	}

	*c = cid

	return nil
}

var (
	_ encoding.TextMarshaler   = CanonicalID{}
	_ encoding.TextUnmarshaler = (*CanonicalID)(nil)
	_ fmt.Stringer             = CanonicalID{}
)
