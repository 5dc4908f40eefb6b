package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/flow"
	"github.com/felixgeelhaar/flowboard/internal/tui"
	"github.com/felixgeelhaar/flowboard/internal/ux"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Create, inspect and change projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project owned by the acting user",
	Long: `Create a project. The acting user becomes its owner.

Without --title on an interactive terminal a form asks for the details.
--from reads a YAML project (title, goal, targetDate, tasks) such as the
output of 'flowboard project export'.

Example:
  flowboard project create --title "Launch" --goal "Ship v1" --target-date 2026-12-01
  flowboard project create --from launch.yaml`,
	Args: cobra.NoArgs,
	RunE: runProjectCreate,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the projects you are a member of",
	Args:  cobra.NoArgs,
	RunE:  runProjectList,
}

var projectShowCmd = &cobra.Command{
	Use:   "show <project>",
	Short: "Show a project and its tasks",
	Long: `Show a project and its tasks. Public projects can be shown without
--user.`,
	Args: cobra.ExactArgs(1),
	RunE: runProjectShow,
}

var projectUpdateCmd = &cobra.Command{
	Use:   "update <project>",
	Short: "Change a project's title, goal, target date or tasks",
	Long: `Change a project. Only the flags given are changed.

--tasks-from replaces the whole task list with the tasks in a YAML file,
either a bare list or a document with a tasks key.`,
	Args: cobra.ExactArgs(1),
	RunE: runProjectUpdate,
}

var projectVisibilityCmd = &cobra.Command{
	Use:   "visibility <project>",
	Short: "Toggle whether a project is public (owner only)",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectVisibility,
}

var projectExportCmd = &cobra.Command{
	Use:   "export <project>",
	Short: "Write a project as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectExport,
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <project>",
	Short: "Delete a project (owner only)",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectDelete,
}

var (
	projectTitle      string
	projectGoal       string
	projectTarget     string
	projectFrom       string
	projectTasksFrom  string
	projectExportFile string
	projectDeleteYes  bool
)

func init() {
	projectCreateCmd.Flags().StringVar(&projectTitle, "title", "", "project title")
	projectCreateCmd.Flags().StringVar(&projectGoal, "goal", "", "what the project is for")
	projectCreateCmd.Flags().StringVar(&projectTarget, "target-date", "", "target date (YYYY-MM-DD)")
	projectCreateCmd.Flags().StringVar(&projectFrom, "from", "", "read the project from a YAML file")

	projectUpdateCmd.Flags().StringVar(&projectTitle, "title", "", "new title")
	projectUpdateCmd.Flags().StringVar(&projectGoal, "goal", "", "new goal")
	projectUpdateCmd.Flags().StringVar(&projectTarget, "target-date", "", "new target date (YYYY-MM-DD, empty clears)")
	projectUpdateCmd.Flags().StringVar(&projectTasksFrom, "tasks-from", "", "replace the tasks with those in a YAML file")

	projectExportCmd.Flags().StringVarP(&projectExportFile, "file", "f", "", "write to a file instead of stdout")
	projectDeleteCmd.Flags().BoolVarP(&projectDeleteYes, "yes", "y", false, "do not ask for confirmation")

	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectShowCmd, projectUpdateCmd,
		projectVisibilityCmd, projectExportCmd, projectDeleteCmd)
	rootCmd.AddCommand(projectCmd)
}

func openBackend(cmd *cobra.Command, opts connectOptions) (*connection, error) {
	return connect(cmd.Context(), current.cfg, current.logger, opts)
}

func runProjectCreate(cmd *cobra.Command, _ []string) error {
	np := collab.NewProject{Title: projectTitle, Goal: projectGoal, TargetDate: projectTarget}
	if projectFrom != "" {
		if err := readYAML(projectFrom, &np); err != nil {
			return err
		}
		if cmd.Flags().Changed("title") {
			np.Title = projectTitle
		}
	}
	if np.Title == "" && tui.ShouldPrompt() {
		var err error
		if np, err = tui.PromptForProject(np); err != nil {
			return err
		}
	}
	if err := np.Validate(); err != nil {
		return err
	}

	conn, err := openBackend(cmd, connectOptions{})
	if err != nil {
		return err
	}
	defer conn.Close()

	p, err := conn.backend.CreateProject(cmd.Context(), np)
	if err != nil {
		return err
	}
	return render(cmd, p, func() string {
		return fmt.Sprintf("✓ Created project %s (%s)", p.Title, p.ID)
	})
}

func runProjectList(cmd *cobra.Command, _ []string) error {
	conn, err := openBackend(cmd, connectOptions{})
	if err != nil {
		return err
	}
	defer conn.Close()

	projects, err := conn.backend.ListProjects(cmd.Context())
	if err != nil {
		return err
	}
	return render(cmd, projects, projectsTable(projects).String)
}

func runProjectShow(cmd *cobra.Command, args []string) error {
	conn, err := openBackend(cmd, connectOptions{anonymous: true})
	if err != nil {
		return err
	}
	defer conn.Close()

	p, err := conn.backend.GetProject(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return render(cmd, p, func() string { return projectText(p) })
}

func runProjectUpdate(cmd *cobra.Command, args []string) error {
	var patch collab.ProjectPatch
	flags := cmd.Flags()
	if flags.Changed("title") {
		patch.Title = &projectTitle
	}
	if flags.Changed("goal") {
		patch.Goal = &projectGoal
	}
	if flags.Changed("target-date") {
		patch.TargetDate = &projectTarget
	}
	if projectTasksFrom != "" {
		tasks, err := readTasks(projectTasksFrom)
		if err != nil {
			return err
		}
		patch.Tasks = &tasks
	}
	if patch.Empty() {
		return errors.New(errors.ErrCodeProjectInvalid, "nothing to update").
			WithSuggestion("Pass at least one of --title, --goal, --target-date, --tasks-from")
	}
	if err := patch.Validate(); err != nil {
		return err
	}

	conn, err := openBackend(cmd, connectOptions{})
	if err != nil {
		return err
	}
	defer conn.Close()

	p, err := conn.backend.UpdateProject(cmd.Context(), args[0], patch)
	if err != nil {
		return err
	}
	return render(cmd, p, func() string {
		return fmt.Sprintf("✓ Updated project %s (%s)", p.Title, p.ID)
	})
}

func runProjectVisibility(cmd *cobra.Command, args []string) error {
	conn, err := openBackend(cmd, connectOptions{})
	if err != nil {
		return err
	}
	defer conn.Close()

	public, err := conn.backend.ToggleVisibility(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	data := map[string]any{"id": args[0], "isPublic": public}
	return render(cmd, data, func() string {
		return fmt.Sprintf("✓ Project %s is now %s", args[0], visibility(public))
	})
}

func runProjectExport(cmd *cobra.Command, args []string) error {
	conn, err := openBackend(cmd, connectOptions{anonymous: true})
	if err != nil {
		return err
	}
	defer conn.Close()

	p, err := conn.backend.GetProject(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if projectExportFile == "" {
		f, err := ux.NewFormatter("yaml", &ux.FormatterOptions{Writer: cmd.OutOrStdout()})
		if err != nil {
			return err
		}
		return f.Format(p)
	}

	out, err := yaml.Marshal(p)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileMarshal, "failed to encode project", err)
	}
	if err := os.WriteFile(projectExportFile, out, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write "+projectExportFile, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %s to %s\n", p.Title, projectExportFile)
	return nil
}

func runProjectDelete(cmd *cobra.Command, args []string) error {
	if !projectDeleteYes {
		if !tui.ShouldPrompt() {
			return errors.New(errors.ErrCodeProjectInvalid, "refusing to delete without confirmation").
				WithSuggestion("Pass --yes to delete without asking")
		}
		ok, err := tui.PromptForConfirmation(fmt.Sprintf("Delete project %s and all its memberships?", args[0]), false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
			return nil
		}
	}

	conn, err := openBackend(cmd, connectOptions{})
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.backend.DeleteProject(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted project %s\n", args[0])
	return nil
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewFileNotFoundError(path)
		}
		return errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read "+path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return errors.NewFileUnmarshalError(path, "YAML", err)
	}
	return nil
}

// readTasks accepts a bare task list or a document with a tasks key, such
// as an exported project.
func readTasks(path string) ([]flow.TaskNode, error) {
	var doc struct {
		Tasks []flow.TaskNode `yaml:"tasks"`
	}
	if err := readYAML(path, &doc); err == nil {
		if doc.Tasks == nil {
			return nil, errors.NewProjectInvalidError(path + " has no tasks key")
		}
		return doc.Tasks, nil
	}
	var tasks []flow.TaskNode
	if err := readYAML(path, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}
