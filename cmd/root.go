package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskdeck/internal/app"
	"taskdeck/internal/config"
	"taskdeck/internal/logging"
	"taskdeck/models"
)

var (
	// cfgFile is the path to the configuration file.
	cfgFile string
	// verbose enables verbose output.
	verbose bool
	// ErrNoTasksFound is returned when an interactive selection is attempted but no tasks are available.
	ErrNoTasksFound = errors.New("no tasks found matching your criteria")
	// version is the application version.
	version = "0.1.0"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "taskdeck",
	Short:   "taskdeck manages your tasks from the command line.",
	Version: version,
	Long: `taskdeck is a personal task manager with a crash-safe on-disk store.
Every edit is backed up, undoable, and safe to run concurrently with the
tray and desktop front ends sharing the same store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(config.Init)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.taskdeck.yaml or ./.taskdeck.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().String("data-dir", "", "directory holding the task store (default is $HOME/.taskdeck)")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("data.dir", rootCmd.PersistentFlags().Lookup("data-dir"))
}

// newServices builds the per-invocation services container.
func newServices() (*app.Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if cfg.Verbose || verbose {
		level = "debug"
	}
	log, err := logging.New(level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return app.New(cfg, log)
}

// selectTaskInteractive shows a searchable task picker.
func selectTaskInteractive(svc *app.Services, filterFn func(models.Task) bool, label string) (models.Task, error) {
	tasks := svc.Store.Tasks()
	if filterFn != nil {
		filtered := tasks[:0]
		for _, t := range tasks {
			if filterFn(t) {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}
	if len(tasks) == 0 {
		return models.Task{}, ErrNoTasksFound
	}

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}?",
		Active:   `> {{ .Title | cyan }} (ID: {{ .ID }}, Status: {{ .Status }})`,
		Inactive: `  {{ .Title | faint }} (ID: {{ .ID }}, Status: {{ .Status }})`,
		Selected: `{{ "✔" | green }} {{ .Title | faint }} (ID: {{ .ID }})`,
	}

	searcher := func(input string, index int) bool {
		task := tasks[index]
		input = strings.ToLower(input)
		return strings.Contains(strings.ToLower(task.Title), input) || strings.Contains(task.ID, input)
	}

	prompt := promptui.Select{
		Label:     label,
		Items:     tasks,
		Templates: templates,
		Searcher:  searcher,
	}

	i, _, err := prompt.Run()
	if err != nil {
		return models.Task{}, err
	}
	return tasks[i], nil
}

// resolveTask returns the task named by args[0], or falls back to the
// interactive picker.
func resolveTask(svc *app.Services, args []string, filterFn func(models.Task) bool, label string) (models.Task, error) {
	if len(args) > 0 {
		task, ok := svc.Store.Get(args[0])
		if !ok {
			return models.Task{}, fmt.Errorf("task %s not found", args[0])
		}
		return task, nil
	}
	return selectTaskInteractive(svc, filterFn, label)
}
