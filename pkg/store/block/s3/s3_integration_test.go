//go:build integration

package s3

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/pagesweep/pkg/store/block"
	"github.com/marmos91/pagesweep/pkg/store/block/storetest"
)

// localstackEndpoint returns LOCALSTACK_ENDPOINT when set, otherwise starts a
// container for the duration of the test.
func localstackEndpoint(t *testing.T) string {
	t.Helper()
	if ep := os.Getenv("LOCALSTACK_ENDPOINT"); ep != "" {
		return ep
	}

	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "localstack/localstack:3.0",
			ExposedPorts: []string{"4566/tcp"},
			Env:          map[string]string{"SERVICES": "s3", "DEFAULT_REGION": "us-east-1"},
			WaitingFor: wait.ForHTTP("/_localstack/health").
				WithPort("4566/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "4566")
	require.NoError(t, err)
	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

func TestLocalstackConformance(t *testing.T) {
	endpoint := localstackEndpoint(t)
	n := 0

	storetest.Run(t, func(t *testing.T) block.Store {
		n++
		bucket := fmt.Sprintf("pagesweep-%d-%d", time.Now().UnixNano(), n)

		s, err := NewFromConfig(t.Context(), Config{
			Bucket:          bucket,
			Region:          "us-east-1",
			Endpoint:        endpoint,
			ForcePathStyle:  true,
			AccessKeyID:     "test",
			SecretAccessKey: "test",
		})
		require.NoError(t, err)

		_, err = s.client.CreateBucket(t.Context(), &s3.CreateBucketInput{Bucket: aws.String(bucket)})
		require.NoError(t, err)
		return s
	})
}
