package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/imamik/storm/internal/ui/style"
	"github.com/imamik/storm/internal/util/prerequisites"
)

// checkDefaultPrereqs runs prerequisite checks.
var checkDefaultPrereqs = prerequisites.CheckDefault

// Doctor handles the doctor command: it reports the client tools storm drives.
func Doctor(ctx context.Context) error {
	results := checkDefaultPrereqs(ctx)
	color := colorOutput()

	for _, r := range results.Results {
		switch {
		case r.Found:
			fmt.Fprintf(stdout, "  %s  %-16s %s\n", style.Render(color, style.Success, style.CheckMark), r.Tool.Name, r.Version)
		case r.Tool.Required:
			fmt.Fprintf(stdout, "  %s  %-16s missing, see %s\n", style.Render(color, style.Failure, style.CrossMark), r.Tool.Name, r.Tool.InstallURL)
		default:
			fmt.Fprintf(stdout, "  %s  %-16s not installed (optional)\n", style.Render(color, style.Warning, style.WarnMark), r.Tool.Name)
		}
	}
	return results.Error()
}

// colorOutput reports whether stdout is a terminal.
func colorOutput() bool {
	f, ok := stdout.(*os.File)
	return ok && style.IsTerminal(f)
}
