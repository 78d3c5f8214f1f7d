package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rbxsync/rbxsync/harness"
	"github.com/spf13/cobra"
)

var (
	harnessProject   string
	harnessGameName  string
	harnessGenre     string
	harnessGameDesc  string
	harnessNewStatus string
	harnessNote      string
	harnessGoals     string
	harnessSummary   string
	harnessHandoff   string
)

var harnessCmd = &cobra.Command{
	Use:   "harness",
	Short: "Track features and dev sessions for a project",
	Long: `The harness keeps a game definition, a feature backlog, and per-session
logs under <project>/.rbxsync/harness as YAML files.

It gives AI-driven development sessions durable state: what the game is,
which features exist and their status, and handoff notes between sessions.

  rbxsync harness init --name "Mine Empire" --genre tycoon
  rbxsync harness status
  rbxsync harness feature "Plot claiming" --set-status in_progress
  rbxsync harness session start --goals "wire the droppers"
  rbxsync harness session end <id> --summary "droppers produce ore"`,
}

var harnessInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the harness for a project",
	RunE:  runHarnessInit,
}

var harnessStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show feature counts and open sessions",
	RunE:  runHarnessStatus,
}

var harnessFeatureCmd = &cobra.Command{
	Use:   "feature <id-or-name>",
	Short: "Update a feature's status",
	Args:  cobra.ExactArgs(1),
	RunE:  runHarnessFeature,
}

var harnessSessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start and end dev sessions",
}

var harnessSessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a dev session",
	RunE:  runHarnessSessionStart,
}

var harnessSessionEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a dev session with a summary and handoff notes",
	Args:  cobra.ExactArgs(1),
	RunE:  runHarnessSessionEnd,
}

var harnessTemplatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List available genre templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range harness.AvailableTemplates() {
			tmpl, err := harness.LoadTemplate(name)
			if err != nil {
				return err
			}
			fmt.Printf("%-12s %s (%d features)\n", name, tmpl.Description, len(tmpl.Features))
		}
		return nil
	},
}

func init() {
	harnessCmd.PersistentFlags().StringVar(&harnessProject, "project", ".", "Project directory")

	harnessInitCmd.Flags().StringVar(&harnessGameName, "name", "", "Name of the game (required)")
	harnessInitCmd.Flags().StringVar(&harnessGenre, "genre", "", "Genre template to seed features from (see 'harness templates')")
	harnessInitCmd.Flags().StringVar(&harnessGameDesc, "description", "", "Short game description")

	harnessFeatureCmd.Flags().StringVar(&harnessNewStatus, "set-status", "", "New status: planned, in_progress, testing, done, or blocked (required)")
	harnessFeatureCmd.Flags().StringVar(&harnessNote, "note", "", "Note to append to the feature")

	harnessSessionStartCmd.Flags().StringVar(&harnessGoals, "goals", "", "What this session aims to accomplish")
	harnessSessionEndCmd.Flags().StringVar(&harnessSummary, "summary", "", "What was accomplished")
	harnessSessionEndCmd.Flags().StringVar(&harnessHandoff, "handoff", "", "Semicolon-separated notes for the next session")

	harnessSessionCmd.AddCommand(harnessSessionStartCmd)
	harnessSessionCmd.AddCommand(harnessSessionEndCmd)
	harnessCmd.AddCommand(harnessInitCmd)
	harnessCmd.AddCommand(harnessStatusCmd)
	harnessCmd.AddCommand(harnessFeatureCmd)
	harnessCmd.AddCommand(harnessSessionCmd)
	harnessCmd.AddCommand(harnessTemplatesCmd)
	rootCmd.AddCommand(harnessCmd)
}

func harnessStore() (*harness.Store, error) {
	projectDir, err := filepath.Abs(harnessProject)
	if err != nil {
		return nil, err
	}
	return harness.NewStore(projectDir), nil
}

func runHarnessInit(cmd *cobra.Command, args []string) error {
	if harnessGameName == "" {
		return fmt.Errorf("--name is required")
	}

	store, err := harnessStore()
	if err != nil {
		return err
	}

	game := harness.GameDefinition{
		Name:        harnessGameName,
		Genre:       harnessGenre,
		Description: harnessGameDesc,
	}

	var features []harness.Feature
	if harnessGenre != "" {
		tmpl, err := harness.LoadTemplate(harnessGenre)
		if err != nil {
			return fmt.Errorf("unknown genre %q (see 'rbxsync harness templates'): %w", harnessGenre, err)
		}
		features = tmpl.Instantiate()
		if harnessGameDesc == "" {
			game.Description = tmpl.Description
		}
	}

	if err := store.Init(game, features); err != nil {
		return fmt.Errorf("failed to initialize harness: %w", err)
	}

	fmt.Printf("Harness initialized for %q in %s\n", harnessGameName, store.Dir())
	if len(features) > 0 {
		fmt.Printf("Seeded %d features from the %s template\n", len(features), harnessGenre)
	}
	return nil
}

func runHarnessStatus(cmd *cobra.Command, args []string) error {
	store, err := harnessStore()
	if err != nil {
		return err
	}

	summary, err := store.Status()
	if err != nil {
		return fmt.Errorf("failed to read harness: %w", err)
	}

	fmt.Printf("Game: %s", summary.Game.Name)
	if summary.Game.Genre != "" {
		fmt.Printf(" (%s)", summary.Game.Genre)
	}
	fmt.Println()
	fmt.Printf("Features: %d\n", summary.TotalFeatures)
	for _, status := range []harness.FeatureStatus{
		harness.StatusPlanned,
		harness.StatusInProgress,
		harness.StatusTesting,
		harness.StatusDone,
		harness.StatusBlocked,
	} {
		if n := summary.ByStatus[status]; n > 0 {
			fmt.Printf("  %-12s %d\n", status, n)
		}
	}
	fmt.Printf("Sessions: %d (%d open)\n", summary.SessionCount, summary.OpenSessions)
	return nil
}

func runHarnessFeature(cmd *cobra.Command, args []string) error {
	if harnessNewStatus == "" {
		return fmt.Errorf("--set-status is required")
	}

	store, err := harnessStore()
	if err != nil {
		return err
	}

	feature, err := store.UpdateFeature(args[0], func(f *harness.Feature) {
		f.Status = harness.FeatureStatus(harnessNewStatus)
		if harnessNote != "" {
			f.Notes = append(f.Notes, harnessNote)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to update feature: %w", err)
	}

	fmt.Printf("%s -> %s\n", feature.Name, feature.Status)
	return nil
}

func runHarnessSessionStart(cmd *cobra.Command, args []string) error {
	store, err := harnessStore()
	if err != nil {
		return err
	}

	session, err := store.StartSession(harnessGoals)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	fmt.Printf("Session started: %s\n", session.ID)
	return nil
}

func runHarnessSessionEnd(cmd *cobra.Command, args []string) error {
	store, err := harnessStore()
	if err != nil {
		return err
	}

	var notes []string
	for _, note := range strings.Split(harnessHandoff, ";") {
		if note = strings.TrimSpace(note); note != "" {
			notes = append(notes, note)
		}
	}

	session, err := store.EndSession(args[0], harnessSummary, notes)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	fmt.Printf("Session %s closed (%d log entries)\n", session.ID, len(session.Entries))
	return nil
}
