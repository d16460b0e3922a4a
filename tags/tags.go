// Package tags computes the image tags a build is published under.
package tags

import (
	"fmt"

	"github.com/input-output-hk/ecr-image-tag/version"
)

// Latest is the tag every build moves.
const Latest = "latest"

// ActiveSuffix is appended to the environment label to form its rolling tag.
const ActiveSuffix = "active"

// Tag is an image tag name together with whether it may be repointed.
type Tag struct {
	// Name is the tag as pushed to the registry.
	Name string

	// Mutable tags are deleted before being reassigned. Immutable tags are
	// pushed as-is and an existing image under the name is left untouched.
	Mutable bool
}

// String returns the tag name with its mutability.
func (t Tag) String() string {
	if t.Mutable {
		return t.Name + " (mutable)"
	}
	return t.Name
}

// Resolve returns the ordered tag list for a build. An empty environment
// means no environment is set.
//
// For a commit build the list is "{env}-{hash}", "{env}-active", "latest";
// for a semver build it is "{env}-{version}", "{major}.{minor}", "{major}",
// "{env}-active", "latest". Environment scoped entries are left out when
// there is no environment.
func Resolve(environment string, id version.Identifier) []Tag {
	hasEnv := environment != ""
	tags := make([]Tag, 0, 5)

	switch id.Kind() {
	case version.Commit:
		if hasEnv {
			tags = append(tags, Tag{Name: environment + "-" + id.Hash()})
		}
	case version.SemVer:
		if hasEnv {
			tags = append(tags, Tag{Name: environment + "-" + id.String()})
		}
		tags = append(tags,
			Tag{Name: fmt.Sprintf("%d.%d", id.Major(), id.Minor()), Mutable: true},
			Tag{Name: fmt.Sprintf("%d", id.Major()), Mutable: true},
		)
	}

	if hasEnv {
		tags = append(tags, Tag{Name: environment + "-" + ActiveSuffix, Mutable: true})
	}

	return append(tags, Tag{Name: Latest, Mutable: true})
}

// Names returns the tag names in order.
func Names(tags []Tag) []string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names
}

// Mutable returns the mutable subset of tags, preserving order.
func Mutable(tags []Tag) []Tag {
	var out []Tag
	for _, t := range tags {
		if t.Mutable {
			out = append(out, t)
		}
	}
	return out
}
