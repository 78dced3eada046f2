package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/edvin/tenancy/internal/db"
	"github.com/edvin/tenancy/internal/model"
)

// Prober checks that resolved parameters reach a live backend.
type Prober interface {
	Probe(ctx context.Context, params *model.ConnectionParams) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, params *model.ConnectionParams) error

func (f ProberFunc) Probe(ctx context.Context, params *model.ConnectionParams) error {
	return f(ctx, params)
}

// MultiProber dispatches to a prober by provider label.
type MultiProber map[string]Prober

// NewMultiProber returns probers for every built-in provider.
func NewMultiProber() MultiProber {
	return MultiProber{
		model.ProviderPostgres:   PostgresProber{},
		model.ProviderS3:         S3Prober{},
		model.ProviderFilesystem: FilesystemProber{},
	}
}

func (m MultiProber) Probe(ctx context.Context, params *model.ConnectionParams) error {
	p, ok := m[params.Provider]
	if !ok {
		return fmt.Errorf("no prober for provider %q", params.Provider)
	}
	return p.Probe(ctx, params)
}

// PostgresProber opens a single-connection pool and pings it.
type PostgresProber struct{}

func (PostgresProber) Probe(ctx context.Context, params *model.ConnectionParams) error {
	probe := params.Clone()
	probe.MaxPoolSize = 1
	probe.MinPoolSize = 0

	pool, err := db.NewTenantPool(ctx, probe)
	if err != nil {
		return err
	}
	pool.Close()
	return nil
}

// S3Prober issues HeadBucket against the tenant's container.
type S3Prober struct{}

func (S3Prober) Probe(ctx context.Context, params *model.ConnectionParams) error {
	if params.ContainerName == "" {
		return fmt.Errorf("s3 probe: %w: no container", model.ErrConnectionNotConfigured)
	}
	_, err := newS3Client(params).HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(params.ContainerName),
	})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", params.ContainerName, err)
	}
	return nil
}

// newS3Client builds a path-style client from a
// "endpoint=...;access_key=...;secret_key=...;region=..." credential.
func newS3Client(params *model.ConnectionParams) *s3.Client {
	cred := parseCredential(params.ConnectionString)

	region := params.Region
	if r := cred["region"]; r != "" {
		region = r
	}
	if region == "" {
		region = "us-east-1"
	}
	endpoint := params.Endpoint
	if e := cred["endpoint"]; e != "" {
		endpoint = e
	}

	opts := s3.Options{
		Region:       region,
		UsePathStyle: true,
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
	}
	if cred["access_key"] != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cred["access_key"], cred["secret_key"], "")
	}
	if params.MaxRetries > 0 {
		opts.RetryMaxAttempts = params.MaxRetries
	}
	return s3.New(opts)
}

// FilesystemProber checks that the storage directory exists.
type FilesystemProber struct{}

func (FilesystemProber) Probe(ctx context.Context, params *model.ConnectionParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(params.Endpoint, params.ContainerName)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat storage root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", dir)
	}
	return nil
}
