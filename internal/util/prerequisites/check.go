// Package prerequisites checks that the client tools storm drives are installed.
package prerequisites

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Tool represents a client tool that may be required.
type Tool struct {
	// Name is the binary name to look for in PATH.
	Name string

	// Required indicates if this tool is mandatory.
	Required bool

	// Description explains what the tool is used for.
	Description string

	// InstallURL provides a URL for installation instructions.
	InstallURL string
}

// DefaultTools returns the tools every deployment needs.
func DefaultTools() []Tool {
	return []Tool{
		{
			Name:        "docker-machine",
			Required:    true,
			Description: "Creates, lists and removes instances on every provider",
			InstallURL:  "https://github.com/docker/machine/releases",
		},
		{
			Name:        "docker",
			Required:    true,
			Description: "Starts discovery containers on remote engines",
			InstallURL:  "https://docs.docker.com/engine/install/",
		},
		{
			Name:        "docker-compose",
			Required:    true,
			Description: "Deploys and scales service bundles on the swarm",
			InstallURL:  "https://docs.docker.com/compose/install/",
		},
	}
}

// CheckResult contains the result of checking a single tool.
type CheckResult struct {
	Tool    Tool
	Found   bool
	Path    string
	Version string
}

// CheckResults contains the results of checking multiple tools.
type CheckResults struct {
	Results []CheckResult
	Missing []Tool
}

// HasErrors returns true if any required tools are missing.
func (r *CheckResults) HasErrors() bool {
	for _, tool := range r.Missing {
		if tool.Required {
			return true
		}
	}
	return false
}

// Error returns an error if any required tools are missing.
func (r *CheckResults) Error() error {
	var missing []string
	for _, tool := range r.Missing {
		if tool.Required {
			missing = append(missing, fmt.Sprintf("%s (%s)", tool.Name, tool.InstallURL))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// Check verifies that the specified tools are available.
func Check(ctx context.Context, tools []Tool) *CheckResults {
	results := &CheckResults{}

	for _, tool := range tools {
		result := CheckResult{Tool: tool}

		path, err := lookPath(tool.Name)
		if err == nil {
			result.Found = true
			result.Path = path
			result.Version = toolVersion(ctx, path)
		} else {
			results.Missing = append(results.Missing, tool)
		}

		results.Results = append(results.Results, result)
	}

	return results
}

// CheckDefault checks the default required tools.
func CheckDefault(ctx context.Context) *CheckResults {
	return Check(ctx, DefaultTools())
}

// toolVersion returns the first line of `<tool> --version`, or "" when the
// tool does not answer within a few seconds.
func toolVersion(ctx context.Context, path string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// #nosec G204 - path comes from trusted Tool definitions, not user input
	output, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return ""
	}
	first, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(first)
}
