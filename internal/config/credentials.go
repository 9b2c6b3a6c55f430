package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/imamik/storm/internal/fleet"
)

// StateDirName is the per-user directory holding credentials and logs.
const StateDirName = ".storm"

// ErrMissingCredentials is returned when a provider is used without credentials.
var ErrMissingCredentials = errors.New("missing credentials")

// AWSCredentials are the static keys used for EC2 calls and the docker-machine driver.
type AWSCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// AzureCredentials identify a service principal in a subscription.
type AzureCredentials struct {
	SubscriptionID string
	TenantID       string
	ClientID       string
	ClientSecret   string
}

// Credentials holds the secrets for every provider that was found on disk.
type Credentials struct {
	AWS               *AWSCredentials
	Azure             *AzureCredentials
	DigitalOceanToken string
	HetznerToken      string
}

// StateDir returns ~/.storm.
func StateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, StateDirName), nil
}

// LoadCredentials reads provider credentials from dir (normally ~/.storm).
//
// Layout:
//
//	aws/credentials           INI, section [Credentials]: aws_access_key_id, aws_secret_access_key
//	azure/credentials         INI, section [Credentials]: subscription_id, tenant_id, client_id, client_secret
//	digitalocean/token        plain token
//	hetzner/token             plain token (HCLOUD_TOKEN overrides)
//
// Missing files are not an error; Require reports what a deployment needs.
func LoadCredentials(dir string) (*Credentials, error) {
	creds := &Credentials{}

	awsFile, err := loadINI(filepath.Join(dir, "aws", "credentials"))
	if err != nil {
		return nil, err
	}
	if awsFile != nil {
		section := awsFile.Section("Credentials")
		creds.AWS = &AWSCredentials{
			AccessKeyID:     section.Key("aws_access_key_id").String(),
			SecretAccessKey: section.Key("aws_secret_access_key").String(),
		}
	}

	azureFile, err := loadINI(filepath.Join(dir, "azure", "credentials"))
	if err != nil {
		return nil, err
	}
	if azureFile != nil {
		section := azureFile.Section("Credentials")
		creds.Azure = &AzureCredentials{
			SubscriptionID: section.Key("subscription_id").String(),
			TenantID:       section.Key("tenant_id").String(),
			ClientID:       section.Key("client_id").String(),
			ClientSecret:   section.Key("client_secret").String(),
		}
	}

	if creds.DigitalOceanToken, err = readToken(filepath.Join(dir, "digitalocean", "token")); err != nil {
		return nil, err
	}

	if creds.HetznerToken, err = readToken(filepath.Join(dir, "hetzner", "token")); err != nil {
		return nil, err
	}
	if token := os.Getenv("HCLOUD_TOKEN"); token != "" {
		creds.HetznerToken = token
	}

	return creds, nil
}

// Require returns an error naming every provider in use that lacks credentials.
func (c *Credentials) Require(providers []fleet.Provider) error {
	var missing []string
	for _, p := range providers {
		if !c.Has(p) {
			missing = append(missing, string(p))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w for %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// Has reports whether credentials for p are present and complete.
func (c *Credentials) Has(p fleet.Provider) bool {
	switch p {
	case fleet.AWS:
		return c.AWS != nil && c.AWS.AccessKeyID != "" && c.AWS.SecretAccessKey != ""
	case fleet.Azure:
		return c.Azure != nil && c.Azure.SubscriptionID != "" && c.Azure.ClientID != "" &&
			c.Azure.ClientSecret != "" && c.Azure.TenantID != ""
	case fleet.DigitalOcean:
		return c.DigitalOceanToken != ""
	case fleet.Hetzner:
		return c.HetznerToken != ""
	default:
		return false
	}
}

func loadINI(path string) (*ini.File, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return f, nil
}

func readToken(path string) (string, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
