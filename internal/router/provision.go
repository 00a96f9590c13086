package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"
)

// ErrProvisioningUnavailable is returned by provisioners that cannot
// start new instances, for example when no controller binary was
// configured.
var ErrProvisioningUnavailable = errors.New("provisioning unavailable")

// Provisioner starts new controller instances when the static pool is
// saturated.
type Provisioner interface {
	// Provision starts one instance and returns its name and base URL
	// once the instance answers health checks.
	Provision(ctx context.Context) (name, url string, err error)

	// Shutdown stops every instance this provisioner started.
	Shutdown()
}

// ExecProvisioner launches controller processes from a binary on the
// local machine. Each clone gets a sequential name and port and inherits
// the parent environment plus the per-instance overrides.
type ExecProvisioner struct {
	// Binary is the controller executable to launch.
	Binary string

	// BasePort is the port of the first clone; clone n listens on
	// BasePort+n-1.
	BasePort int

	// ExtraEnv is appended to every clone's environment, after the
	// generated CONTROLLER_NAME and CONTROLLER_LISTEN entries.
	ExtraEnv []string

	// ReadyTimeout bounds how long Provision waits for the clone's
	// health endpoint. Zero means 10 seconds.
	ReadyTimeout time.Duration

	mu      sync.Mutex
	counter int
	procs   map[string]*exec.Cmd
}

// NewExecProvisioner returns a provisioner launching binary, with clone
// ports starting at basePort.
func NewExecProvisioner(binary string, basePort int) *ExecProvisioner {
	return &ExecProvisioner{
		Binary:   binary,
		BasePort: basePort,
		procs:    make(map[string]*exec.Cmd),
	}
}

// Provision starts one controller clone and waits for it to come up.
func (p *ExecProvisioner) Provision(ctx context.Context) (string, string, error) {
	if p.Binary == "" {
		return "", "", ErrProvisioningUnavailable
	}

	p.mu.Lock()
	p.counter++
	n := p.counter
	p.mu.Unlock()

	name := fmt.Sprintf("dynamic-controller-%d", n)
	port := p.BasePort + n - 1
	url := fmt.Sprintf("http://localhost:%d", port)

	cmd := exec.Command(p.Binary)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("CONTROLLER_NAME=%s", name),
		fmt.Sprintf("CONTROLLER_LISTEN=:%d", port),
	)
	cmd.Env = append(cmd.Env, p.ExtraEnv...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("starting %s: %w", name, err)
	}

	p.mu.Lock()
	p.procs[name] = cmd
	p.mu.Unlock()

	if err := p.waitReady(ctx, url); err != nil {
		p.stop(name)
		return "", "", fmt.Errorf("%s did not become ready: %w", name, err)
	}

	log.Printf("provisioned %s at %s", name, url)
	return name, url, nil
}

// waitReady polls the clone's health endpoint until it answers or the
// deadline passes.
func (p *ExecProvisioner) waitReady(ctx context.Context, url string) error {
	timeout := p.ReadyTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/health", nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *ExecProvisioner) stop(name string) {
	p.mu.Lock()
	cmd := p.procs[name]
	delete(p.procs, name)
	p.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
}

// Shutdown kills every clone this provisioner started.
func (p *ExecProvisioner) Shutdown() {
	p.mu.Lock()
	names := make([]string, 0, len(p.procs))
	for name := range p.procs {
		names = append(names, name)
	}
	p.mu.Unlock()
	for _, name := range names {
		p.stop(name)
	}
}
