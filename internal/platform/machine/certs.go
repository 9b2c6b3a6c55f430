package machine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const certBootstrapName = "storm-cert-bootstrap"

// CertDir returns the docker-machine client certificate directory.
func CertDir() (string, error) {
	if storage := os.Getenv("MACHINE_STORAGE_PATH"); storage != "" {
		return filepath.Join(storage, "certs"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".docker", "machine", "certs"), nil
}

// EnsureCertificates makes docker-machine generate its CA and client
// certificates before many machines are created in parallel, which would
// otherwise race to create them. It creates and removes a driverless machine.
func (c *Client) EnsureCertificates(ctx context.Context, certDir string) error {
	if _, err := os.Stat(filepath.Join(certDir, "ca.pem")); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check certificates: %w", err)
	}

	if _, err := c.exec(ctx, "create", "--driver", "none", "--url", fmt.Sprintf("tcp://127.0.0.1:%d", EnginePort), certBootstrapName); err != nil {
		return fmt.Errorf("failed to generate machine certificates: %w", err)
	}
	if err := c.Remove(ctx, certBootstrapName); err != nil {
		return fmt.Errorf("failed to remove certificate bootstrap machine: %w", err)
	}
	return nil
}
