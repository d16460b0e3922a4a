package ecr

import (
	"errors"
	"fmt"
)

// AWS error codes the client classifies.
const (
	AccessDeniedException          = "AccessDeniedException"
	RepositoryNotFoundException    = "RepositoryNotFoundException"
	ImageAlreadyExistsException    = "ImageAlreadyExistsException"
	ImageNotFoundException         = "ImageNotFoundException"
	ImageTagAlreadyExistsException = "ImageTagAlreadyExistsException"
)

var (
	// ErrImageNotFound is returned by DeleteImage when no image carries the tag.
	// Callers removing a stale tag treat it as success.
	ErrImageNotFound = errors.New("image not found")

	// ErrImageAlreadyExists is returned by PutImage when the tag already
	// points at the same manifest.
	ErrImageAlreadyExists = errors.New("image already exists")

	// ErrAccessDenied is returned when the credentials lack the ECR
	// permission needed for the operation.
	ErrAccessDenied = errors.New("access denied to repository")

	// ErrRepositoryNotFound is returned when the repository does not exist
	// in the registry.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrDeleteFailed is returned when BatchDeleteImage reports a failure
	// other than a missing image.
	ErrDeleteFailed = errors.New("image delete failed")

	// ErrEmptyImageList is returned by GetManifest when no image carries the
	// tag. The image was either never pushed or removed by a lifecycle rule.
	ErrEmptyImageList = errors.New("empty image list, check application build and image name; " +
		"the image might have been deleted by ECR lifecycle rules")

	// ErrInvalidManifest is returned when an image has no manifest or the
	// manifest is not a JSON image manifest.
	ErrInvalidManifest = errors.New("invalid image manifest")

	// ErrMissingField is returned when an ECR response lacks a field the API
	// contract guarantees, such as an image tag or digest.
	ErrMissingField = errors.New("missing field in ECR response")
)

// Error describes a failed ECR operation together with the repository and
// tag it targeted.
type Error struct {
	// Op is the ECR API operation that failed (e.g. "PutImage").
	Op string

	// Repository is the repository name, if known.
	Repository string

	// Tag is the image tag, if known.
	Tag string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Repository != "" && e.Tag != "":
		return fmt.Sprintf("ecr.%s %s:%s: %v", e.Op, e.Repository, e.Tag, e.Err)
	case e.Repository != "":
		return fmt.Sprintf("ecr.%s %s: %v", e.Op, e.Repository, e.Err)
	default:
		return fmt.Sprintf("ecr.%s: %v", e.Op, e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, repository, tag string, err error) *Error {
	return &Error{
		Op:         op,
		Repository: repository,
		Tag:        tag,
		Err:        err,
	}
}

// IsImageNotFound reports whether err means the tag did not exist.
func IsImageNotFound(err error) bool {
	return errors.Is(err, ErrImageNotFound)
}

// IsImageAlreadyExists reports whether err means the tag already points at
// the manifest.
func IsImageAlreadyExists(err error) bool {
	return errors.Is(err, ErrImageAlreadyExists)
}
