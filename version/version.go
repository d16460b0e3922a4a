// Package version models the identifier a build is published under: either a
// full source-control commit hash or a semantic version.
package version

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CommitLength is the number of hex digits in a full commit hash.
const CommitLength = 40

// ReleasePrefix is stripped from version strings before semver parsing.
const ReleasePrefix = "release-"

// ErrInvalid is returned when a string is neither a commit hash nor a
// semantic version.
var ErrInvalid = errors.New("invalid version identifier")

// Kind discriminates the variants of Identifier.
type Kind int

const (
	// Commit identifies a build by its 40 hex digit commit hash.
	Commit Kind = iota + 1

	// SemVer identifies a build by a semantic version.
	SemVer
)

// String returns the variant name.
func (k Kind) String() string {
	switch k {
	case Commit:
		return "commit"
	case SemVer:
		return "semver"
	default:
		return "unknown"
	}
}

// Identifier is a closed union over Commit and SemVer. The zero value is
// invalid; construct one with Parse, NewCommit or NewSemVer.
type Identifier struct {
	kind    Kind
	hash    string
	version *semver.Version
}

// NewCommit returns a Commit identifier. The hash must be exactly 40 hex digits.
func NewCommit(hash string) (Identifier, error) {
	if !isCommitHash(hash) {
		return Identifier{}, fmt.Errorf("%w: %q is not a %d digit hex commit hash", ErrInvalid, hash, CommitLength)
	}
	return Identifier{kind: Commit, hash: hash}, nil
}

// NewSemVer returns a SemVer identifier wrapping v.
func NewSemVer(v *semver.Version) (Identifier, error) {
	if v == nil {
		return Identifier{}, fmt.Errorf("%w: nil version", ErrInvalid)
	}
	return Identifier{kind: SemVer, version: v}, nil
}

// Parse turns s into an Identifier. A string of exactly 40 hex digits is
// always a Commit. Anything else is parsed as a strict semantic version after
// leading "release-" prefixes are removed.
func Parse(s string) (Identifier, error) {
	if isCommitHash(s) {
		return Identifier{kind: Commit, hash: s}, nil
	}

	trimmed := s
	for strings.HasPrefix(trimmed, ReleasePrefix) {
		trimmed = strings.TrimPrefix(trimmed, ReleasePrefix)
	}

	v, err := semver.StrictNewVersion(trimmed)
	if err != nil {
		return Identifier{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
	}

	return Identifier{kind: SemVer, version: v}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level values.
func MustParse(s string) Identifier {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Kind reports which variant id holds.
func (id Identifier) Kind() Kind {
	return id.kind
}

// IsZero reports whether id was never initialized.
func (id Identifier) IsZero() bool {
	return id.kind == 0
}

// Hash returns the commit hash, or "" for a SemVer identifier.
func (id Identifier) Hash() string {
	return id.hash
}

// Version returns the semantic version, or nil for a Commit identifier.
func (id Identifier) Version() *semver.Version {
	return id.version
}

// Major returns the major component of a SemVer identifier.
func (id Identifier) Major() uint64 {
	if id.version == nil {
		return 0
	}
	return id.version.Major()
}

// Minor returns the minor component of a SemVer identifier.
func (id Identifier) Minor() uint64 {
	if id.version == nil {
		return 0
	}
	return id.version.Minor()
}

// String renders id the way it appears in an image tag. Build metadata is
// omitted since '+' is not allowed in registry tags.
func (id Identifier) String() string {
	switch id.kind {
	case Commit:
		return id.hash
	case SemVer:
		s := fmt.Sprintf("%d.%d.%d", id.version.Major(), id.version.Minor(), id.version.Patch())
		if pre := id.version.Prerelease(); pre != "" {
			s += "-" + pre
		}
		return s
	default:
		return ""
	}
}

// Equal reports whether id and other hold the same variant and value.
func (id Identifier) Equal(other Identifier) bool {
	if id.kind != other.kind {
		return false
	}
	switch id.kind {
	case Commit:
		return id.hash == other.hash
	case SemVer:
		return id.version.Equal(other.version) && id.version.Metadata() == other.version.Metadata()
	default:
		return true
	}
}

func isCommitHash(s string) bool {
	if len(s) != CommitLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
