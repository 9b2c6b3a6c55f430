// Package prompt asks the operator to confirm destructive or costly actions.
package prompt

import (
	"context"
	"errors"
	"os"

	"github.com/charmbracelet/huh"

	"github.com/imamik/storm/internal/ui/style"
)

// ErrNotInteractive is returned when a confirmation is needed but stdin is not a terminal.
var ErrNotInteractive = errors.New("confirmation required but stdin is not a terminal, rerun with --yes")

// Confirmer answers yes/no questions.
type Confirmer struct {
	// AutoApprove answers yes without asking.
	AutoApprove bool

	ask         func(ctx context.Context, title, description string) (bool, error)
	interactive func() bool
}

// New returns a Confirmer that asks on the terminal unless autoApprove is set.
func New(autoApprove bool) *Confirmer {
	return &Confirmer{
		AutoApprove: autoApprove,
		ask:         askForm,
		interactive: func() bool { return style.IsTerminal(os.Stdin) },
	}
}

// Confirm asks title. Aborting the form counts as no.
func (c *Confirmer) Confirm(ctx context.Context, title, description string) (bool, error) {
	if c.AutoApprove {
		return true, nil
	}
	if !c.interactive() {
		return false, ErrNotInteractive
	}

	ok, err := c.ask(ctx, title, description)
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

func askForm(ctx context.Context, title, description string) (bool, error) {
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).RunWithContext(ctx)
	return ok, err
}
