// Package publish points every resolved tag of a build at its image manifest.
//
// Publishing runs in two phases. The cleanup phase deletes every mutable tag
// concurrently and waits for all deletions to finish. The push phase then
// puts the manifest under every tag concurrently. A missing tag during
// cleanup and an identical existing tag during push are expected outcomes;
// any other registry failure cancels the remaining calls of the phase and is
// returned.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/input-output-hk/ecr-image-tag/identity"
	"github.com/input-output-hk/ecr-image-tag/services/aws/ecr"
	"github.com/input-output-hk/ecr-image-tag/tags"
	"github.com/input-output-hk/ecr-image-tag/version"
)

const tracerName = "github.com/input-output-hk/ecr-image-tag/publish"

// Span names.
const (
	SpanPublish     = "publish"
	SpanCleanup     = "publish.cleanup"
	SpanPush        = "publish.push"
	SpanDeleteImage = "ecr.DeleteImage"
	SpanPutImage    = "ecr.PutImage"
	SpanGetManifest = "ecr.GetManifest"
)

// Span attribute keys.
const (
	AttrRepository  = "ecr.repository"
	AttrImageTag    = "ecr.image_tag"
	AttrImageDigest = "ecr.image_digest"
	AttrTagCount    = "publish.tag_count"
	AttrOutcome     = "publish.outcome"
)

// ErrInvalidInput is returned before any registry call when the arguments
// cannot describe a publish.
var ErrInvalidInput = errors.New("invalid publish input")

// Registry is the subset of registry operations the coordinator needs.
// *ecr.Client implements it.
type Registry interface {
	DeleteImage(ctx context.Context, repository, tag string) ([]ecr.ImageID, error)
	PutImage(ctx context.Context, repository, tag string, manifest ecr.Manifest) (*ecr.ImageID, error)
	GetManifest(ctx context.Context, repository, tag string) (ecr.Manifest, error)
}

var _ Registry = (*ecr.Client)(nil)

// Coordinator publishes a manifest under a set of tags.
//
// A Coordinator holds no per-publish state and is safe for concurrent use.
type Coordinator struct {
	registry    Registry
	logger      *slog.Logger
	tracer      trace.Tracer
	concurrency int
}

// New returns a Coordinator issuing its calls against registry.
func New(registry Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry: registry,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Run publishes the image of build id: it resolves the tags, fetches the
// manifest pushed under the build version and publishes it under every tag.
// The repository is the build's application name.
func (c *Coordinator) Run(ctx context.Context, id identity.BuildIdentity) error {
	resolved := tags.Resolve(id.Environment, id.Version)

	c.log().InfoContext(ctx, "resolved image tags",
		"repository", id.Application,
		"version", id.Version.String(),
		"image_tags", tags.Names(resolved))

	manifest, err := c.FetchManifest(ctx, id.Application, id.Version)
	if err != nil {
		return err
	}

	return c.Publish(ctx, id.Application, manifest, resolved)
}

// FetchManifest returns the manifest of the image tagged with the rendered
// form of v in repository.
func (c *Coordinator) FetchManifest(ctx context.Context, repository string, v version.Identifier) (ecr.Manifest, error) {
	if repository == "" {
		return ecr.Manifest{}, fmt.Errorf("%w: repository name cannot be empty", ErrInvalidInput)
	}
	if v.IsZero() {
		return ecr.Manifest{}, fmt.Errorf("%w: version cannot be empty", ErrInvalidInput)
	}

	tag := v.String()
	ctx, span := c.tracer.Start(ctx, SpanGetManifest, trace.WithAttributes(
		attribute.String(AttrRepository, repository),
		attribute.String(AttrImageTag, tag),
	))
	defer span.End()

	manifest, err := c.registry.GetManifest(ctx, repository, tag)
	if err != nil {
		recordError(span, err)
		return ecr.Manifest{}, fmt.Errorf("fetch manifest: %w", err)
	}

	span.SetAttributes(attribute.String(AttrImageDigest, manifest.Digest.String()))
	span.SetStatus(codes.Ok, "")

	c.log().InfoContext(ctx, "fetched image manifest",
		"repository", repository,
		"image_tag", tag,
		"image_digest", manifest.Digest.String(),
		"media_type", manifest.MediaType)

	return manifest, nil
}

// Publish makes every tag in tagList point at manifest in repository.
//
// Mutable tags are deleted first; no put starts before every deletion has
// finished. An empty tag list is a no-op. Completed registry changes are not
// rolled back when a later call fails.
func (c *Coordinator) Publish(ctx context.Context, repository string, manifest ecr.Manifest, tagList []tags.Tag) error {
	if repository == "" {
		return fmt.Errorf("%w: repository name cannot be empty", ErrInvalidInput)
	}
	if len(tagList) == 0 {
		return nil
	}
	if manifest.IsZero() {
		return fmt.Errorf("%w: manifest cannot be empty", ErrInvalidInput)
	}

	ctx, span := c.tracer.Start(ctx, SpanPublish, trace.WithAttributes(
		attribute.String(AttrRepository, repository),
		attribute.String(AttrImageDigest, manifest.Digest.String()),
		attribute.Int(AttrTagCount, len(tagList)),
	))
	defer span.End()

	if err := c.cleanup(ctx, repository, tags.Mutable(tagList)); err != nil {
		recordError(span, err)
		return err
	}

	if err := c.push(ctx, repository, manifest, tagList); err != nil {
		recordError(span, err)
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (c *Coordinator) group(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	return g, gctx
}

func (c *Coordinator) cleanup(ctx context.Context, repository string, mutable []tags.Tag) error {
	ctx, span := c.tracer.Start(ctx, SpanCleanup, trace.WithAttributes(
		attribute.Int(AttrTagCount, len(mutable)),
	))
	defer span.End()

	g, gctx := c.group(ctx)
	for _, tag := range mutable {
		g.Go(func() error {
			return c.deleteTag(gctx, repository, tag.Name)
		})
	}

	if err := g.Wait(); err != nil {
		recordError(span, err)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (c *Coordinator) push(ctx context.Context, repository string, manifest ecr.Manifest, tagList []tags.Tag) error {
	ctx, span := c.tracer.Start(ctx, SpanPush, trace.WithAttributes(
		attribute.Int(AttrTagCount, len(tagList)),
	))
	defer span.End()

	g, gctx := c.group(ctx)
	for _, tag := range tagList {
		g.Go(func() error {
			return c.putTag(gctx, repository, tag.Name, manifest)
		})
	}

	if err := g.Wait(); err != nil {
		recordError(span, err)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (c *Coordinator) deleteTag(ctx context.Context, repository, tag string) error {
	ctx, span := c.tracer.Start(ctx, SpanDeleteImage, trace.WithAttributes(
		attribute.String(AttrRepository, repository),
		attribute.String(AttrImageTag, tag),
	))
	defer span.End()

	ids, err := c.registry.DeleteImage(ctx, repository, tag)
	switch {
	case ecr.IsImageNotFound(err):
		span.SetAttributes(attribute.String(AttrOutcome, "not_found"))
		span.SetStatus(codes.Ok, "")
		c.log().DebugContext(ctx, "image tag not present",
			"repository", repository,
			"image_tag", tag)
		return nil
	case err != nil:
		recordError(span, err)
		return fmt.Errorf("delete image tag %s: %w", tag, err)
	}

	span.SetAttributes(attribute.String(AttrOutcome, "deleted"))
	span.SetStatus(codes.Ok, "")
	for _, id := range ids {
		c.log().InfoContext(ctx, "Deleted image tag",
			"repository", repository,
			"image_tag", id.Tag,
			"image_digest", id.Digest)
	}
	return nil
}

func (c *Coordinator) putTag(ctx context.Context, repository, tag string, manifest ecr.Manifest) error {
	ctx, span := c.tracer.Start(ctx, SpanPutImage, trace.WithAttributes(
		attribute.String(AttrRepository, repository),
		attribute.String(AttrImageTag, tag),
	))
	defer span.End()

	id, err := c.registry.PutImage(ctx, repository, tag, manifest)
	switch {
	case ecr.IsImageAlreadyExists(err):
		span.SetAttributes(attribute.String(AttrOutcome, "already_exists"))
		span.SetStatus(codes.Ok, "")
		c.log().WarnContext(ctx, "image tag already exists",
			"repository", repository,
			"image_tag", tag,
			"error", err)
		return nil
	case err != nil:
		recordError(span, err)
		return fmt.Errorf("put image tag %s: %w", tag, err)
	}

	span.SetAttributes(
		attribute.String(AttrOutcome, "added"),
		attribute.String(AttrImageDigest, id.Digest),
	)
	span.SetStatus(codes.Ok, "")

	c.log().InfoContext(ctx, "Added image tag",
		"repository", repository,
		"image_tag", id.Tag,
		"image_digest", id.Digest)

	if manifest.Digest != "" && id.Digest != manifest.Digest.String() {
		c.log().WarnContext(ctx, "registry digest differs from manifest digest",
			"repository", repository,
			"image_tag", id.Tag,
			"image_digest", id.Digest,
			"manifest_digest", manifest.Digest.String())
	}
	return nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
