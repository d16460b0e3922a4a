// Package identity builds the identity of the image being published from
// already-resolved configuration values.
package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/input-output-hk/ecr-image-tag/version"
)

// Configuration keys read by Load.
const (
	KeyEnvironment = "ENVIRONMENT"
	KeyApplication = "APPLICATION"
	KeyImageName   = "IMAGE_NAME"
	KeyImageTag    = "IMAGE_TAG"
	KeyCommit      = "COMMIT"
)

var (
	// ErrMissingApplication is returned when neither IMAGE_NAME nor
	// APPLICATION carries a value.
	ErrMissingApplication = errors.New("application name not set")

	// ErrMissingVersion is returned when neither IMAGE_TAG nor COMMIT carries
	// a value.
	ErrMissingVersion = errors.New("version identifier not set")

	// ErrInvalidEnvironment is returned when the environment label cannot be
	// used as part of an image tag.
	ErrInvalidEnvironment = errors.New("invalid environment label")
)

var environmentPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._-]*$`)

// BuildIdentity describes the image a run publishes.
type BuildIdentity struct {
	// Application is the ECR repository name.
	Application string

	// Environment is the deployment environment label; empty when absent.
	Environment string

	// Version identifies the build.
	Version version.Identifier
}

// HasEnvironment reports whether an environment label is present.
func (b BuildIdentity) HasEnvironment() bool {
	return b.Environment != ""
}

// Inputs holds the raw configuration values. An empty string means the value
// is absent.
type Inputs struct {
	Environment string
	Application string
	ImageName   string
	ImageTag    string
	Commit      string
}

// New validates in and derives a BuildIdentity from it.
//
// IMAGE_NAME wins over APPLICATION and is used verbatim; APPLICATION has its
// underscores replaced with hyphens. IMAGE_TAG wins over COMMIT as the
// version source.
func New(in Inputs) (BuildIdentity, error) {
	var application string
	switch {
	case in.ImageName != "":
		application = in.ImageName
	case in.Application != "":
		application = NormalizeApplication(in.Application)
	default:
		return BuildIdentity{}, fmt.Errorf("%w: set %s or %s", ErrMissingApplication, KeyImageName, KeyApplication)
	}

	if in.Environment != "" && !environmentPattern.MatchString(in.Environment) {
		return BuildIdentity{}, fmt.Errorf("%w: %s=%q", ErrInvalidEnvironment, KeyEnvironment, in.Environment)
	}

	source, raw := KeyImageTag, in.ImageTag
	if raw == "" {
		source, raw = KeyCommit, in.Commit
	}
	if raw == "" {
		return BuildIdentity{}, fmt.Errorf("%w: set %s or %s", ErrMissingVersion, KeyImageTag, KeyCommit)
	}

	id, err := version.Parse(raw)
	if err != nil {
		return BuildIdentity{}, fmt.Errorf("unable to parse %s: %w", source, err)
	}

	return BuildIdentity{
		Application: application,
		Environment: in.Environment,
		Version:     id,
	}, nil
}

// NormalizeApplication replaces underscores with hyphens.
func NormalizeApplication(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}
