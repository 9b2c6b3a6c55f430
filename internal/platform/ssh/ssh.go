package ssh

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/imamik/storm/internal/util/retry"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
	defaultMaxRetries  = 10
	defaultRetryDelay  = 2 * time.Second
	defaultMaxDelay    = 10 * time.Second
)

// Config holds SSH client configuration.
type Config struct {
	Host       string
	Port       int
	User       string
	PrivateKey []byte

	// DialTimeout is the timeout for establishing the TCP connection.
	// If zero, defaultDialTimeout is used.
	DialTimeout time.Duration

	// MaxRetries is the maximum number of connection retry attempts.
	// If zero, defaultMaxRetries is used.
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts.
	// If zero, defaultRetryDelay is used.
	RetryDelay time.Duration

	// HostKeyCallback handles host key verification.
	// If nil, ssh.InsecureIgnoreHostKey() is used; docker-machine does the same.
	HostKeyCallback ssh.HostKeyCallback
}

// ConfigFromKeyFile builds a Config reading the private key at keyPath.
func ConfigFromKeyFile(host string, port int, user, keyPath string) (*Config, error) {
	// #nosec G304
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ssh key: %w", err)
	}
	return &Config{Host: host, Port: port, User: user, PrivateKey: key}, nil
}

// Client runs commands and uploads files on one host. The key is parsed once;
// every call opens its own connection.
type Client struct {
	config Config
	signer ssh.Signer
}

func (cfg *Config) validate() error {
	switch {
	case cfg == nil:
		return fmt.Errorf("config cannot be nil")
	case cfg.Host == "":
		return fmt.Errorf("config host cannot be empty")
	case cfg.User == "":
		return fmt.Errorf("config user cannot be empty")
	case len(cfg.PrivateKey) == 0:
		return fmt.Errorf("config private key cannot be empty")
	}
	return nil
}

// withDefaults returns a copy of cfg with zero fields filled in.
func (cfg Config) withDefaults() Config {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.HostKeyCallback == nil {
		cfg.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // docker-machine hosts are ephemeral
	}
	return cfg
}

// NewClient validates cfg and parses its private key.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &Client{config: cfg.withDefaults(), signer: signer}, nil
}

// Execute runs a command on the remote host.
// Returns command output (stdout+stderr) and any execution error.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	return c.runCommand(client, command, nil)
}

// Upload writes data to remotePath, creating its directory.
func (c *Client) Upload(ctx context.Context, remotePath string, data []byte, mode os.FileMode) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	command := fmt.Sprintf("mkdir -p %s && cat > %s && chmod %s %s",
		shellQuote(path.Dir(remotePath)), shellQuote(remotePath),
		strconv.FormatUint(uint64(mode.Perm()), 8), shellQuote(remotePath))
	if _, err := c.runCommand(client, command, data); err != nil {
		return fmt.Errorf("failed to upload %s: %w", remotePath, err)
	}
	return nil
}

// connect dials the host, retrying with backoff until it accepts the
// handshake or ctx is done.
func (c *Client) connect(ctx context.Context) (*ssh.Client, error) {
	clientConfig := &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}
	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))

	var client *ssh.Client
	err := retry.WithExponentialBackoff(ctx, func(ctx context.Context) error {
		dialer := net.Dialer{Timeout: c.config.DialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
		if err != nil {
			_ = conn.Close()
			return err
		}
		client = ssh.NewClient(sshConn, chans, reqs)
		return nil
	},
		retry.WithMaxRetries(c.config.MaxRetries),
		retry.WithInitialDelay(c.config.RetryDelay),
		retry.WithMaxDelay(defaultMaxDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return client, nil
}

func (c *Client) runCommand(client *ssh.Client, command string, stdin []byte) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session on %s: %w", c.config.Host, err)
	}
	defer func() { _ = session.Close() }()

	if stdin != nil {
		session.Stdin = bytes.NewReader(stdin)
	}

	output, err := session.CombinedOutput(command)
	if err != nil {
		return string(output), fmt.Errorf("command failed on %s: %w\nCommand: %s\nOutput: %s",
			c.config.Host, err, command, string(output))
	}

	return string(output), nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
