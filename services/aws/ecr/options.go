package ecr

import (
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// clientOptions holds configuration options for the ECR client.
type clientOptions struct {
	logger  *slog.Logger
	region  string
	retryer aws.Retryer
	api     ImagesAPI
}

// Option is a functional option for configuring the Client.
type Option func(*clientOptions)

// WithLogger configures the client with a logger.
// If logger is nil, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *clientOptions) {
		opts.logger = logger
	}
}

// WithRegion pins the AWS region. When unset the SDK default chain is used,
// falling back to DefaultRegion.
func WithRegion(region string) Option {
	return func(opts *clientOptions) {
		opts.region = region
	}
}

// WithCustomRetryer replaces the default throttling-only retryer.
// If retryer is nil, the AWS SDK standard retryer is used.
func WithCustomRetryer(retryer aws.Retryer) Option {
	return func(opts *clientOptions) {
		opts.retryer = retryer
	}
}

// WithAPI makes the client issue its calls against api instead of an SDK
// client built from the AWS configuration.
func WithAPI(api ImagesAPI) Option {
	return func(opts *clientOptions) {
		opts.api = api
	}
}

// defaultOptions returns the default configuration options.
func defaultOptions() *clientOptions {
	return &clientOptions{
		logger:  nil, // No default logger
		retryer: createCustomRetryer(),
	}
}

// applyOptions applies the given options to the client options.
func applyOptions(opts *clientOptions, options []Option) {
	for _, option := range options {
		option(opts)
	}
}
