package ecr

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Docker distribution manifest media types.
const (
	MediaTypeDockerManifest     = "application/vnd.docker.distribution.manifest.v2+json"
	MediaTypeDockerManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"
)

// AcceptedMediaTypes are requested from BatchGetImage so ECR returns the
// manifest in the format it was pushed in.
var AcceptedMediaTypes = []string{
	ocispec.MediaTypeImageManifest,
	ocispec.MediaTypeImageIndex,
	MediaTypeDockerManifest,
	MediaTypeDockerManifestList,
}

// Manifest is an image manifest as stored in the registry. Body is pushed
// byte for byte; MediaType and Digest are derived from it.
type Manifest struct {
	Body      string
	MediaType string
	Digest    digest.Digest
}

// NewManifest wraps body, reading its media type and computing its digest.
func NewManifest(body string) (Manifest, error) {
	if strings.TrimSpace(body) == "" {
		return Manifest{}, fmt.Errorf("%w: empty document", ErrInvalidManifest)
	}

	var header struct {
		specs.Versioned
		MediaType string `json:"mediaType,omitempty"`
	}
	if err := json.Unmarshal([]byte(body), &header); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if header.SchemaVersion <= 0 {
		return Manifest{}, fmt.Errorf("%w: missing schemaVersion", ErrInvalidManifest)
	}

	return Manifest{
		Body:      body,
		MediaType: header.MediaType,
		Digest:    digest.FromString(body),
	}, nil
}

// IsZero reports whether m holds no document.
func (m Manifest) IsZero() bool {
	return m.Body == ""
}
