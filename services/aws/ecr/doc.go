// Package ecr provides a small, testable client for the AWS Elastic Container
// Registry image APIs used to retag an already pushed image.
//
// The client wraps the AWS SDK v2 `ecr` service to provide:
//   - DeleteImage: remove a tag from a repository (BatchDeleteImage)
//   - PutImage: point a tag at a manifest (PutImage)
//   - GetManifest: fetch the manifest stored under a tag (BatchGetImage)
//   - Typed errors (`ErrImageNotFound`, `ErrImageAlreadyExists`,
//     `ErrAccessDenied`, ...) classified from AWS API error codes
//   - A throttling-only retryer so that every other failure surfaces at once
//
// # IAM permissions
//
// The role running the client needs `ecr:BatchGetImage`, `ecr:PutImage` and
// `ecr:BatchDeleteImage` on the target repository.
//
// # Thread safety
//
// All exported client methods are safe for concurrent use by multiple
// goroutines. The underlying AWS SDK v2 client is thread-safe and the client
// holds no mutable state.
package ecr
