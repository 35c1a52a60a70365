// Package cloud describes provider credentials and builds SDK configuration from them.
package cloud

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Credentials identify a caller to the object store and compute provider.
// SecretAccessKey and SessionToken are never logged or serialized.
type Credentials struct {
	AccessKeyID     string `json:"-"`
	SecretAccessKey string `json:"-"`
	SessionToken    string `json:"-"`
	Region          string `json:"-"`
	Endpoint        string `json:"-"`
}

// IsZero reports whether no static key pair is set, in which case the SDK
// default chain (environment, shared config, instance role) is used.
func (c Credentials) IsZero() bool {
	return c.AccessKeyID == "" && c.SecretAccessKey == ""
}

// Key identifies the client built from these credentials. It is a digest of
// every field, so a different secret or session token gets its own client and
// the secret never appears in the key itself.
func (c Credentials) Key() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		c.AccessKeyID, c.SecretAccessKey, c.SessionToken, c.Region, c.Endpoint,
	}, "\x00")))
	return hex.EncodeToString(sum[:])
}

// Merge returns c with empty fields filled from fallback.
func (c Credentials) Merge(fallback Credentials) Credentials {
	if c.IsZero() {
		c.AccessKeyID = fallback.AccessKeyID
		c.SecretAccessKey = fallback.SecretAccessKey
		c.SessionToken = fallback.SessionToken
	}
	if c.Region == "" {
		c.Region = fallback.Region
	}
	if c.Endpoint == "" {
		c.Endpoint = fallback.Endpoint
	}
	return c
}

// AWSConfig loads an SDK configuration for these credentials.
func AWSConfig(ctx context.Context, c Credentials) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	if !c.IsZero() {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	if c.Endpoint != "" {
		cfg.BaseEndpoint = aws.String(c.Endpoint)
	}
	return cfg, nil
}
