package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/felixgeelhaar/flowboard/internal/authz"
	"github.com/felixgeelhaar/flowboard/internal/collab"
)

// PromptForConfirmation displays a yes/no confirmation prompt
func PromptForConfirmation(message string, defaultValue bool) (bool, error) {
	confirmed := defaultValue

	confirm := huh.NewConfirm().
		Title(message).
		Value(&confirmed)

	form := huh.NewForm(huh.NewGroup(confirm))

	if err := form.Run(); err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}

	return confirmed, nil
}

// PromptForRole asks which role an invitation grants.
func PromptForRole(message string) (authz.Role, error) {
	options := make([]huh.Option[authz.Role], 0, len(authz.AllRoles()))
	for _, r := range authz.AllRoles() {
		if r == authz.RoleOwner {
			continue
		}
		options = append(options, huh.NewOption(string(r), r))
	}

	role := authz.RoleEditor
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[authz.Role]().
			Title(message).
			Options(options...).
			Value(&role),
	))
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return role, nil
}

// ProjectForm builds the form for a new project, validating each field the
// way the backend will.
func ProjectForm(np *collab.NewProject) *huh.Form {
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Title").
			Placeholder("Website relaunch").
			Value(&np.Title).
			Validate(func(s string) error {
				return collab.NewProject{Title: s}.Validate()
			}),
		huh.NewText().
			Title("Goal").
			Placeholder("What does done look like?").
			Value(&np.Goal),
		huh.NewInput().
			Title("Target date").
			Placeholder("YYYY-MM-DD, optional").
			Value(&np.TargetDate).
			Validate(func(s string) error {
				return collab.NewProject{Title: "-", TargetDate: s}.Validate()
			}),
	))
}

// PromptForProject fills in whatever np is missing interactively.
func PromptForProject(np collab.NewProject) (collab.NewProject, error) {
	if err := ProjectForm(&np).Run(); err != nil {
		return collab.NewProject{}, fmt.Errorf("prompt failed: %w", err)
	}
	np.Title = strings.TrimSpace(np.Title)
	return np, np.Validate()
}

// IsInteractive returns true if stdin is a terminal (not piped)
func IsInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// ShouldPrompt returns true if prompts should be shown based on environment
// Prompts are disabled in CI environments or when stdin is not a terminal
func ShouldPrompt() bool {
	ciEnvVars := []string{
		"CI",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"TRAVIS",
		"CIRCLECI",
		"BUILDKITE",
	}

	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return false
		}
	}

	return IsInteractive()
}
