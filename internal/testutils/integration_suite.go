package testutils

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"esdata/features/source"
	"esdata/internal/adapter/elasticsearch"
	"esdata/internal/config"
	"esdata/internal/logger"
)

const (
	elasticsearchImage = "docker.elastic.co/elasticsearch/elasticsearch:8.17.0"
	minioImage         = "minio/minio:RELEASE.2024-10-13T13-34-11Z"

	MinioAccessKey = "minioadmin"
	MinioSecretKey = "minioadmin"
)

type IntegrationSuite struct {
	T                *testing.T
	ElasticsearchURL string
	Elasticsearch    *elasticsearch.Client

	// Set by SetupObjectStore
	MinioEndpoint string
	Minio         *minio.Client
	Objects       *source.MinioStore

	// Containers
	esContainer    testcontainers.Container
	minioContainer testcontainers.Container
}

func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	return &IntegrationSuite{T: t}
}

// Setup starts a single node Elasticsearch without security.
func (s *IntegrationSuite) Setup() {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        elasticsearchImage,
		ExposedPorts: []string{"9200/tcp"},
		Env: map[string]string{
			"discovery.type":         "single-node",
			"xpack.security.enabled": "false",
			"ES_JAVA_OPTS":           "-Xms512m -Xmx512m",
		},
		WaitingFor: wait.ForHTTP("/_cluster/health?wait_for_status=yellow").
			WithPort("9200/tcp").
			WithStartupTimeout(120 * time.Second),
	}
	esC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.esContainer = esC

	host, err := esC.Host(ctx)
	require.NoError(s.T, err)
	port, err := esC.MappedPort(ctx, "9200")
	require.NoError(s.T, err)

	s.ElasticsearchURL = fmt.Sprintf("http://%s:%s", host, port.Port())
	esClient, err := es.NewClient(es.Config{Addresses: []string{s.ElasticsearchURL}})
	require.NoError(s.T, err)
	s.Elasticsearch = elasticsearch.NewClientWithES(esClient)
}

// SetupObjectStore starts MinIO for s3:// fixture locations.
func (s *IntegrationSuite) SetupObjectStore() {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        minioImage,
		ExposedPorts: []string{"9000/tcp"},
		Cmd:          []string{"server", "/data"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     MinioAccessKey,
			"MINIO_ROOT_PASSWORD": MinioSecretKey,
		},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	}
	minioC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.minioContainer = minioC

	host, err := minioC.Host(ctx)
	require.NoError(s.T, err)
	port, err := minioC.MappedPort(ctx, "9000")
	require.NoError(s.T, err)

	s.MinioEndpoint = fmt.Sprintf("%s:%s", host, port.Port())
	s.Minio, err = minio.New(s.MinioEndpoint, &minio.Options{
		Creds: credentials.NewStaticV4(MinioAccessKey, MinioSecretKey, ""),
	})
	require.NoError(s.T, err)
	s.Objects = source.NewMinioStoreWithClient(s.Minio)
}

// UploadFixture copies the local file at path to bucket/key, creating the
// bucket when needed.
func (s *IntegrationSuite) UploadFixture(bucket, key, path string) {
	ctx := context.Background()
	exists, err := s.Minio.BucketExists(ctx, bucket)
	require.NoError(s.T, err)
	if !exists {
		require.NoError(s.T, s.Minio.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}
	_, err = s.Minio.FPutObject(ctx, bucket, key, path, minio.PutObjectOptions{})
	require.NoError(s.T, err)
}

// GetAppConfig points a configuration at the suite's containers.
func (s *IntegrationSuite) GetAppConfig(mappingsFile, fixturesDir string) *config.Config {
	cfg := &config.Config{
		ElasticsearchURLs:          []string{s.ElasticsearchURL},
		MappingsFile:               mappingsFile,
		FixturesDir:                fixturesDir,
		LogLevel:                   "debug",
		BootstrapRetryAttempts:     5,
		BootstrapRetryDelaySeconds: 1,
	}
	if s.MinioEndpoint != "" {
		cfg.S3Endpoint = "http://" + s.MinioEndpoint
		cfg.S3AccessKey = MinioAccessKey
		cfg.S3SecretKey = MinioSecretKey
		cfg.S3Region = "us-east-1"
	}
	return cfg
}

func (s *IntegrationSuite) Logger() *slog.Logger {
	return logger.New(os.Stdout, "debug")
}

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.esContainer != nil {
		s.esContainer.Terminate(ctx)
	}
	if s.minioContainer != nil {
		s.minioContainer.Terminate(ctx)
	}
}
