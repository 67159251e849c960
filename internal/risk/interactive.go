package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/gorewood/splice/internal/fix"
)

// ConfirmFunc asks a human a yes/no question.
type ConfirmFunc func(ctx context.Context, title, description string) (bool, error)

// Interactive puts a human in the loop for every fix that needs confirmation.
type Interactive struct {
	Confirm ConfirmFunc
}

// NewInteractive returns an Interactive policy that prompts on the terminal.
func NewInteractive() *Interactive {
	return &Interactive{Confirm: terminalConfirm}
}

// Decide implements Policy. Aborting the prompt counts as declining.
func (p *Interactive) Decide(ctx context.Context, f fix.Fix, a Assessment) (Decision, error) {
	confirm := p.Confirm
	if confirm == nil {
		confirm = terminalConfirm
	}

	title := fmt.Sprintf("Apply %s fix (%s risk, confidence %.0f%%)?", fixLabel(f), a.Level, f.Confidence*100)
	approved, err := confirm(ctx, title, describe(f, a))
	if errors.Is(err, huh.ErrUserAborted) {
		return Decision{Reason: ReasonUserDeclined}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("confirmation prompt: %w", err)
	}
	if !approved {
		return Decision{Reason: ReasonUserDeclined}, nil
	}
	return Decision{Approved: true}, nil
}

// terminalConfirm renders a huh confirm field.
func terminalConfirm(ctx context.Context, title, description string) (bool, error) {
	var approved bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Description(description).
			Affirmative("Apply").
			Negative("Skip").
			Value(&approved),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return false, err
	}
	return approved, nil
}

func fixLabel(f fix.Fix) string {
	if f.Type == "" {
		return "unnamed"
	}
	return f.Type
}

// describe lists the reasons and touched files for the prompt body.
func describe(f fix.Fix, a Assessment) string {
	var sb strings.Builder
	for _, reason := range a.Reasons {
		sb.WriteString("• " + reason + "\n")
	}
	if f.Explanation != "" {
		sb.WriteString("\n" + f.Explanation + "\n")
	}
	sb.WriteString("\nChanges:\n")
	for _, change := range f.Changes {
		fmt.Fprintf(&sb, "  %s %s\n", change.Type, change.File)
	}
	return strings.TrimRight(sb.String(), "\n")
}
