package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/platform/s3"
)

// Environment overrides for certificate downloads from S3-compatible stores.
const (
	S3EndpointEnv = "STORM_S3_ENDPOINT"
	S3RegionEnv   = "STORM_S3_REGION"
)

// CertificateLoader returns the certificate bundle ref points to.
type CertificateLoader func(ctx context.Context, ref string) ([]byte, error)

// LoadCertificate reads a local file or downloads an s3://bucket/key object
// with the AWS credentials.
func LoadCertificate(creds *config.Credentials) CertificateLoader {
	return func(ctx context.Context, ref string) ([]byte, error) {
		if s3.IsURI(ref) {
			if creds == nil || creds.AWS == nil {
				return nil, fmt.Errorf("%w: fetching %s needs aws credentials", config.ErrMissingCredentials, ref)
			}
			region := os.Getenv(S3RegionEnv)
			if region == "" {
				region = "us-east-1"
			}
			client, err := s3.NewClient(os.Getenv(S3EndpointEnv), region, creds.AWS.AccessKeyID, creds.AWS.SecretAccessKey)
			if err != nil {
				return nil, err
			}
			return client.Fetch(ctx, ref)
		}

		path := ref
		if rest, ok := strings.CutPrefix(ref, "~/"); ok {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to resolve home directory: %w", err)
			}
			path = filepath.Join(home, rest)
		}
		// #nosec G304
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read certificate: %w", err)
		}
		return data, nil
	}
}
