package ecr

import (
	"context"

	awsecr "github.com/aws/aws-sdk-go-v2/service/ecr"
)

// ImagesAPI defines the subset of the AWS ECR API used by this package.
// It abstracts the AWS SDK v2 ECR client so tests can substitute a mock.
type ImagesAPI interface {
	// BatchDeleteImage removes images, here always a single tag, from a repository.
	BatchDeleteImage(
		ctx context.Context,
		params *awsecr.BatchDeleteImageInput,
		optFns ...func(*awsecr.Options),
	) (*awsecr.BatchDeleteImageOutput, error)

	// PutImage creates or updates the image manifest and tag of an image.
	PutImage(
		ctx context.Context,
		params *awsecr.PutImageInput,
		optFns ...func(*awsecr.Options),
	) (*awsecr.PutImageOutput, error)

	// BatchGetImage returns image details, including the manifest, for the given image ids.
	BatchGetImage(
		ctx context.Context,
		params *awsecr.BatchGetImageInput,
		optFns ...func(*awsecr.Options),
	) (*awsecr.BatchGetImageOutput, error)
}

var _ ImagesAPI = (*awsecr.Client)(nil)
