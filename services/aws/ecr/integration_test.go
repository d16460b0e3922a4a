//go:build integration

// Package ecr_test provides integration tests for the ECR client against
// LocalStack started through testcontainers.
//
// IMPORTANT: This file uses build tags and will only be included when running:
//
//	go test -tags=integration -v ./...
//
// ECR is a LocalStack Pro service, so the tests are skipped unless
// LOCALSTACK_AUTH_TOKEN is set. Docker must be running.
package ecr_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsecr "github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/docker/go-connections/nat"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"

	"github.com/input-output-hk/ecr-image-tag/services/aws/ecr"
)

const authTokenEnv = "LOCALSTACK_AUTH_TOKEN"

// testContainer manages the LocalStack test container lifecycle
type testContainer struct {
	container *localstack.LocalStackContainer
	uri       string
}

var (
	globalContainer *testContainer
	containerOnce   sync.Once
	containerMutex  sync.Mutex
)

// getTestContainer returns a singleton LocalStack container for all integration tests
func getTestContainer(ctx context.Context) (*testContainer, error) {
	containerMutex.Lock()
	defer containerMutex.Unlock()

	var err error
	containerOnce.Do(func() {
		container, startErr := localstack.Run(ctx, "localstack/localstack-pro:latest",
			testcontainers.WithEnv(map[string]string{
				authTokenEnv: os.Getenv(authTokenEnv),
				"SERVICES":   "ecr",
			}),
		)
		if startErr != nil {
			err = fmt.Errorf("failed to start LocalStack container: %w", startErr)
			return
		}

		port, _ := nat.NewPort("tcp", "4566")
		uri, uriErr := container.PortEndpoint(ctx, port, "")
		if uriErr != nil {
			_ = container.Terminate(ctx)
			err = fmt.Errorf("failed to get LocalStack endpoint: %w", uriErr)
			return
		}

		if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
			uri = "http://" + uri
		}

		globalContainer = &testContainer{
			container: container,
			uri:       uri,
		}
	})

	if err != nil {
		return nil, err
	}

	return globalContainer, nil
}

// terminateTestContainer cleans up the global test container
func terminateTestContainer(ctx context.Context) error {
	containerMutex.Lock()
	defer containerMutex.Unlock()

	if globalContainer != nil {
		err := globalContainer.container.Terminate(ctx)
		globalContainer = nil
		containerOnce = sync.Once{}
		return err
	}
	return nil
}

func TestMain(m *testing.M) {
	if os.Getenv(authTokenEnv) == "" {
		fmt.Fprintf(os.Stderr, "%s not set, skipping ECR integration tests\n", authTokenEnv)
		os.Exit(0)
	}

	ctx := context.Background()

	if _, err := getTestContainer(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start LocalStack: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := terminateTestContainer(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to terminate LocalStack: %v\n", err)
	}

	os.Exit(code)
}

// newTestClient creates an ecr.Client configured for LocalStack
func newTestClient(ctx context.Context, t *testing.T, opts ...ecr.Option) *ecr.Client {
	t.Helper()

	tc, err := getTestContainer(ctx)
	require.NoError(t, err)

	client, err := ecr.NewClientWithLocalStack(ctx, tc.uri, opts...)
	require.NoError(t, err)
	return client
}

// newRawClient returns an SDK client for fixture setup the ecr package does
// not cover (repositories, blob uploads).
func newRawClient(ctx context.Context, t *testing.T) *awsecr.Client {
	t.Helper()

	tc, err := getTestContainer(ctx)
	require.NoError(t, err)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	require.NoError(t, err)

	return awsecr.NewFromConfig(cfg, func(o *awsecr.Options) {
		o.BaseEndpoint = aws.String(tc.uri)
	})
}

func createRepository(ctx context.Context, t *testing.T, raw *awsecr.Client) string {
	t.Helper()

	name := fmt.Sprintf("test-repo-%d", time.Now().UnixNano())
	_, err := raw.CreateRepository(ctx, &awsecr.CreateRepositoryInput{
		RepositoryName: aws.String(name),
	})
	require.NoError(t, err)
	return name
}

// uploadConfigBlob pushes a minimal image config and returns a manifest
// referencing it.
func uploadConfigBlob(ctx context.Context, t *testing.T, raw *awsecr.Client, repository string) string {
	t.Helper()

	blob := []byte(`{"architecture":"amd64","os":"linux","rootfs":{"type":"layers","diff_ids":[]}}`)
	dgst := digest.FromBytes(blob)

	initiated, err := raw.InitiateLayerUpload(ctx, &awsecr.InitiateLayerUploadInput{
		RepositoryName: aws.String(repository),
	})
	require.NoError(t, err)

	_, err = raw.UploadLayerPart(ctx, &awsecr.UploadLayerPartInput{
		RepositoryName: aws.String(repository),
		UploadId:       initiated.UploadId,
		PartFirstByte:  aws.Int64(0),
		PartLastByte:   aws.Int64(int64(len(blob) - 1)),
		LayerPartBlob:  blob,
	})
	require.NoError(t, err)

	_, err = raw.CompleteLayerUpload(ctx, &awsecr.CompleteLayerUploadInput{
		RepositoryName: aws.String(repository),
		UploadId:       initiated.UploadId,
		LayerDigests:   []string{dgst.String()},
	})
	require.NoError(t, err)

	return fmt.Sprintf(`{"schemaVersion":2,"mediaType":"application/vnd.docker.distribution.manifest.v2+json",`+
		`"config":{"mediaType":"application/vnd.docker.container.image.v1+json","size":%d,"digest":"%s"},"layers":[]}`,
		len(blob), dgst)
}

// TestImageTagLifecycle pushes a manifest, retags it, then moves a tag.
func TestImageTagLifecycle(t *testing.T) {
	ctx := context.Background()
	raw := newRawClient(ctx, t)
	client := newTestClient(ctx, t)

	repository := createRepository(ctx, t, raw)
	manifest, err := ecr.NewManifest(uploadConfigBlob(ctx, t, raw, repository))
	require.NoError(t, err)

	t.Run("PutImage", func(t *testing.T) {
		id, err := client.PutImage(ctx, repository, "1.2.3", manifest)
		require.NoError(t, err)
		assert.Equal(t, "1.2.3", id.Tag)
		assert.NotEmpty(t, id.Digest)
	})

	t.Run("GetManifest", func(t *testing.T) {
		fetched, err := client.GetManifest(ctx, repository, "1.2.3")
		require.NoError(t, err)
		assert.Equal(t, manifest.Digest, fetched.Digest)
	})

	t.Run("PutImage same tag again", func(t *testing.T) {
		_, err := client.PutImage(ctx, repository, "1.2.3", manifest)
		require.Error(t, err)
		assert.True(t, ecr.IsImageAlreadyExists(err))
	})

	t.Run("PutImage second tag", func(t *testing.T) {
		_, err := client.PutImage(ctx, repository, "latest", manifest)
		require.NoError(t, err)
	})

	t.Run("DeleteImage removes only the tag", func(t *testing.T) {
		ids, err := client.DeleteImage(ctx, repository, "latest")
		require.NoError(t, err)
		require.Len(t, ids, 1)
		assert.Equal(t, "latest", ids[0].Tag)

		_, err = client.GetManifest(ctx, repository, "1.2.3")
		assert.NoError(t, err)
	})
}

// TestErrorScenarios tests the classified failures.
func TestErrorScenarios(t *testing.T) {
	ctx := context.Background()
	raw := newRawClient(ctx, t)
	client := newTestClient(ctx, t)
	repository := createRepository(ctx, t, raw)

	t.Run("DeleteImage missing tag", func(t *testing.T) {
		_, err := client.DeleteImage(ctx, repository, "missing")
		require.Error(t, err)
		assert.True(t, ecr.IsImageNotFound(err))
	})

	t.Run("GetManifest missing tag", func(t *testing.T) {
		_, err := client.GetManifest(ctx, repository, "missing")
		assert.ErrorIs(t, err, ecr.ErrEmptyImageList)
	})

	t.Run("GetManifest missing repository", func(t *testing.T) {
		_, err := client.GetManifest(ctx, "no-such-repository", "latest")
		assert.ErrorIs(t, err, ecr.ErrRepositoryNotFound)
	})
}
