package ecr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsecr "github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/smithy-go"
)

// DefaultRegion is used when neither an explicit region nor the SDK default
// chain provides one.
const DefaultRegion = "eu-north-1"

// ImageID identifies an image by tag and digest.
type ImageID struct {
	Tag    string
	Digest string
}

// Client provides the image operations needed to retag an image in ECR.
//
// Thread Safety: the api field is immutable and AWS SDK v2 clients are
// thread-safe; the logger is a *slog.Logger. All Client methods are safe for
// concurrent use.
type Client struct {
	// api is the underlying AWS ECR client (thread-safe)
	api ImagesAPI

	// logger is used for structured logging of operations (thread-safe)
	logger *slog.Logger

	// region is the AWS region requests are sent to
	region string
}

// NewClient creates an ECR client from the default AWS configuration.
//
// The region is taken from WithRegion when given, otherwise from the SDK
// default chain (AWS_REGION, shared config), otherwise DefaultRegion.
//
// Example usage:
//
//	client, err := ecr.NewClient(ctx,
//	    ecr.WithLogger(slog.Default()),
//	    ecr.WithRegion(os.Getenv("AWS_DEFAULT_REGION")),
//	)
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}

	options := defaultOptions()
	applyOptions(options, opts)

	var loadOpts []func(*config.LoadOptions) error
	if options.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(options.region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	return newClient(&cfg, options), nil
}

// NewClientWithConfig creates an ECR client from a caller-provided AWS
// configuration. The configuration must carry a region.
func NewClientWithConfig(ctx context.Context, cfg *aws.Config, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("config region cannot be empty")
	}

	options := defaultOptions()
	applyOptions(options, opts)

	return newClient(cfg, options), nil
}

// NewClientWithLocalStack creates an ECR client that talks to a LocalStack
// endpoint. This is a convenience function for integration testing.
func NewClientWithLocalStack(ctx context.Context, endpointURL string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}
	if endpointURL == "" {
		return nil, fmt.Errorf("endpoint URL cannot be empty")
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	options := defaultOptions()
	applyOptions(options, opts)

	if options.api == nil {
		options.api = awsecr.NewFromConfig(cfg, func(o *awsecr.Options) {
			o.BaseEndpoint = aws.String(endpointURL)
			if options.retryer != nil {
				o.Retryer = options.retryer
			}
		})
	}

	return newClient(&cfg, options), nil
}

func newClient(cfg *aws.Config, options *clientOptions) *Client {
	api := options.api
	if api == nil {
		api = awsecr.NewFromConfig(*cfg, func(o *awsecr.Options) {
			if options.retryer != nil {
				o.Retryer = options.retryer
			}
		})
	}

	return &Client{
		api:    api,
		logger: options.logger,
		region: cfg.Region,
	}
}

// Region returns the AWS region the client sends requests to.
func (c *Client) Region() string {
	return c.region
}

// handleError classifies an error returned by the SDK. Known AWS error codes
// become package sentinel errors; everything else keeps the API error code
// and message. The result always carries operation, repository and tag.
func (c *Client) handleError(err error, op, repository, tag string) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		var sentinel error
		switch apiErr.ErrorCode() {
		case AccessDeniedException:
			sentinel = ErrAccessDenied
		case RepositoryNotFoundException:
			sentinel = ErrRepositoryNotFound
		case ImageAlreadyExistsException:
			sentinel = ErrImageAlreadyExists
		case ImageNotFoundException:
			sentinel = ErrImageNotFound
		}
		if sentinel != nil {
			if msg := apiErr.ErrorMessage(); msg != "" {
				return newError(op, repository, tag, fmt.Errorf("%w: %s", sentinel, msg))
			}
			return newError(op, repository, tag, sentinel)
		}
	}

	return newError(op, repository, tag, err)
}

func (c *Client) logError(ctx context.Context, msg, repository, tag string, err error) {
	if c.logger == nil {
		return
	}
	c.logger.ErrorContext(ctx, msg,
		"repository", repository,
		"image_tag", tag,
		"error", err)
}

func validateTarget(ctx context.Context, repository, tag string) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}
	if repository == "" {
		return fmt.Errorf("repository name cannot be empty")
	}
	if tag == "" {
		return fmt.Errorf("image tag cannot be empty")
	}
	return nil
}

// DeleteImage removes tag from repository and returns the identifiers of the
// images it untagged.
//
// When no image carries the tag the error wraps ErrImageNotFound. Any other
// failure reported by ECR wraps ErrDeleteFailed.
func (c *Client) DeleteImage(ctx context.Context, repository, tag string) ([]ImageID, error) {
	if err := validateTarget(ctx, repository, tag); err != nil {
		return nil, err
	}

	if c.logger != nil {
		c.logger.DebugContext(ctx, "deleting image tag",
			"repository", repository,
			"image_tag", tag)
	}

	input := &awsecr.BatchDeleteImageInput{
		RepositoryName: aws.String(repository),
		ImageIds: []ecrtypes.ImageIdentifier{
			{ImageTag: aws.String(tag)},
		},
	}

	output, err := c.api.BatchDeleteImage(ctx, input)
	if err != nil {
		err = c.handleError(err, "BatchDeleteImage", repository, tag)
		if !IsImageNotFound(err) {
			c.logError(ctx, "failed to delete image tag", repository, tag, err)
		}
		return nil, err
	}

	notFound := false
	for _, failure := range output.Failures {
		if failure.FailureCode == ecrtypes.ImageFailureCodeImageNotFound {
			notFound = true
			continue
		}
		err := newError("BatchDeleteImage", repository, tag,
			fmt.Errorf("%w: %s: %s", ErrDeleteFailed, failure.FailureCode, aws.ToString(failure.FailureReason)))
		c.logError(ctx, "failed to delete image tag", repository, tag, err)
		return nil, err
	}

	ids := make([]ImageID, 0, len(output.ImageIds))
	for _, imageID := range output.ImageIds {
		id, err := toImageID(&imageID)
		if err != nil {
			return nil, newError("BatchDeleteImage", repository, tag, err)
		}
		ids = append(ids, id)
	}

	if len(ids) == 0 && notFound {
		return nil, newError("BatchDeleteImage", repository, tag, ErrImageNotFound)
	}

	return ids, nil
}

// PutImage points tag in repository at manifest and returns the identifier
// of the tagged image.
//
// When the tag already points at the same manifest the error wraps
// ErrImageAlreadyExists.
func (c *Client) PutImage(ctx context.Context, repository, tag string, manifest Manifest) (*ImageID, error) {
	if err := validateTarget(ctx, repository, tag); err != nil {
		return nil, err
	}
	if manifest.IsZero() {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidManifest)
	}

	if c.logger != nil {
		c.logger.DebugContext(ctx, "putting image tag",
			"repository", repository,
			"image_tag", tag,
			"media_type", manifest.MediaType)
	}

	input := &awsecr.PutImageInput{
		RepositoryName: aws.String(repository),
		ImageTag:       aws.String(tag),
		ImageManifest:  aws.String(manifest.Body),
	}
	if manifest.MediaType != "" {
		input.ImageManifestMediaType = aws.String(manifest.MediaType)
	}

	output, err := c.api.PutImage(ctx, input)
	if err != nil {
		err = c.handleError(err, "PutImage", repository, tag)
		if !IsImageAlreadyExists(err) {
			c.logError(ctx, "failed to put image tag", repository, tag, err)
		}
		return nil, err
	}

	if output.Image == nil {
		return nil, newError("PutImage", repository, tag, fmt.Errorf("%w: image", ErrMissingField))
	}

	id, err := toImageID(output.Image.ImageId)
	if err != nil {
		return nil, newError("PutImage", repository, tag, err)
	}

	return &id, nil
}

// GetManifest returns the manifest of the image tagged tag in repository.
//
// The error wraps ErrEmptyImageList when no image carries the tag and
// ErrInvalidManifest when the image has no usable manifest.
func (c *Client) GetManifest(ctx context.Context, repository, tag string) (Manifest, error) {
	if err := validateTarget(ctx, repository, tag); err != nil {
		return Manifest{}, err
	}

	if c.logger != nil {
		c.logger.DebugContext(ctx, "fetching image manifest",
			"repository", repository,
			"image_tag", tag)
	}

	input := &awsecr.BatchGetImageInput{
		RepositoryName: aws.String(repository),
		ImageIds: []ecrtypes.ImageIdentifier{
			{ImageTag: aws.String(tag)},
		},
		AcceptedMediaTypes: AcceptedMediaTypes,
	}

	output, err := c.api.BatchGetImage(ctx, input)
	if err != nil {
		err = c.handleError(err, "BatchGetImage", repository, tag)
		c.logError(ctx, "failed to fetch image manifest", repository, tag, err)
		return Manifest{}, err
	}

	if len(output.Images) == 0 {
		return Manifest{}, newError("BatchGetImage", repository, tag, ErrEmptyImageList)
	}

	image := output.Images[0]
	if image.ImageManifest == nil {
		return Manifest{}, newError("BatchGetImage", repository, tag, fmt.Errorf("%w: no manifest", ErrInvalidManifest))
	}

	manifest, err := NewManifest(*image.ImageManifest)
	if err != nil {
		return Manifest{}, newError("BatchGetImage", repository, tag, err)
	}
	if manifest.MediaType == "" {
		manifest.MediaType = aws.ToString(image.ImageManifestMediaType)
	}

	if c.logger != nil {
		c.logger.DebugContext(ctx, "fetched image manifest",
			"repository", repository,
			"image_tag", tag,
			"image_digest", manifest.Digest.String())
	}

	return manifest, nil
}

func toImageID(id *ecrtypes.ImageIdentifier) (ImageID, error) {
	if id == nil {
		return ImageID{}, fmt.Errorf("%w: image id", ErrMissingField)
	}
	if id.ImageTag == nil || *id.ImageTag == "" {
		return ImageID{}, fmt.Errorf("%w: image tag", ErrMissingField)
	}
	if id.ImageDigest == nil || *id.ImageDigest == "" {
		return ImageID{}, fmt.Errorf("%w: image digest", ErrMissingField)
	}
	return ImageID{Tag: *id.ImageTag, Digest: *id.ImageDigest}, nil
}
