package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/platform/ssh"
	"github.com/imamik/storm/internal/provisioning"
)

// Certificate location on every cluster instance, relative to the login home.
const (
	RemoteDir         = ".storm"
	RemoteCertificate = "certificate.pem"
)

// Step weights: connect, create the directory, copy the certificate.
const (
	weightConnect = 1
	weightMkdir   = 4
	weightCopy    = 5
)

// ErrNothingPrepared is returned when no instance received the certificate.
var ErrNothingPrepared = errors.New("certificate was not copied to any instance")

// Shell runs commands and writes files on one instance.
type Shell interface {
	Execute(ctx context.Context, command string) (string, error)
	Upload(ctx context.Context, remotePath string, data []byte, mode os.FileMode) error
}

// ShellFactory opens a Shell on an instance.
type ShellFactory func(ctx *provisioning.Context, name string) (Shell, error)

// MachineSSH connects with the address, user and key docker-machine recorded.
func MachineSSH(ctx *provisioning.Context, name string) (Shell, error) {
	details, err := ctx.Machines.Inspect(ctx, name)
	if err != nil {
		return nil, err
	}
	cfg, err := ssh.ConfigFromKeyFile(details.IPAddress, details.SSHPort, details.SSHUser, details.SSHKeyPath)
	if err != nil {
		return nil, err
	}
	cfg.DialTimeout = ctx.Timeouts.SSHConnect
	cfg.MaxRetries = ctx.Timeouts.RetryMaxAttempts
	cfg.RetryDelay = ctx.Timeouts.RetryInitialDelay

	client, err := ssh.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// HAProxyPrepare copies the load balancer certificate to every cluster instance.
type HAProxyPrepare struct {
	Instances []fleet.Instance
	Load      CertificateLoader
	Connect   ShellFactory

	prepared []string
}

// NewHAProxyPrepare creates the phase with the default loader and SSH transport.
func NewHAProxyPrepare(instances []fleet.Instance, load CertificateLoader) *HAProxyPrepare {
	return &HAProxyPrepare{Instances: instances, Load: load, Connect: MachineSSH}
}

// Name implements the provisioning.Phase interface.
func (h *HAProxyPrepare) Name() string {
	return "prepare haproxy"
}

// Provision implements the provisioning.Phase interface.
func (h *HAProxyPrepare) Provision(ctx *provisioning.Context) error {
	if ctx.Config.LoadBalancers == 0 {
		ctx.Observer.Printf("[%s] no load balancers configured, skipping", h.Name())
		return nil
	}
	if len(h.Instances) == 0 {
		return ErrNothingPrepared
	}

	cert, err := h.Load(ctx, ctx.Config.Certificate)
	if err != nil {
		return err
	}

	batch := provisioning.Batch{Phase: h.Name(), Deadline: ctx.Timeouts.Batch}
	for _, inst := range h.Instances {
		batch.Tasks = append(batch.Tasks, provisioning.Task{
			Instance: inst,
			Op:       provisioning.OpRun,
			Weight:   weightConnect + weightMkdir + weightCopy,
			Run: func(tctx context.Context, p provisioning.Progress) error {
				return h.copy(ctx, tctx, p, inst.Name, cert)
			},
		})
	}

	report := provisioning.RunBatch(ctx, batch)
	h.prepared = report.Succeeded()
	if len(h.prepared) == 0 {
		return fmt.Errorf("%w: %w", ErrNothingPrepared, report.Err())
	}
	return nil
}

// Prepared returns the instances that received the certificate.
func (h *HAProxyPrepare) Prepared() []string {
	return append([]string(nil), h.prepared...)
}

func (h *HAProxyPrepare) copy(ctx *provisioning.Context, tctx context.Context, p provisioning.Progress, name string, cert []byte) error {
	shell, err := h.Connect(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	p.Advance(weightConnect)

	if _, err := shell.Execute(tctx, "mkdir -p "+RemoteDir); err != nil {
		return fmt.Errorf("failed to create %s: %w", RemoteDir, err)
	}
	p.Advance(weightMkdir)

	if err := shell.Upload(tctx, path.Join(RemoteDir, RemoteCertificate), cert, 0o600); err != nil {
		return fmt.Errorf("failed to copy certificate: %w", err)
	}
	p.Advance(weightCopy)
	return nil
}
