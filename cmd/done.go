package cmd

import (
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"taskdeck/models"
)

// doneCmd represents the done command
var doneCmd = &cobra.Command{
	Use:   "done [task_id]",
	Short: "Mark a task as completed",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		notDone := func(t models.Task) bool { return t.Status != models.StatusCompleted }
		task, err := resolveTask(svc, args, notDone, "Select task to mark as done")
		if err != nil {
			if err == promptui.ErrInterrupt || err == ErrNoTasksFound {
				fmt.Println("Nothing marked done.")
				return nil
			}
			return err
		}

		if err := svc.SetStatus(task.ID, models.StatusCompleted); err != nil {
			return err
		}
		fmt.Printf("Completed %q\n", task.Title)
		return nil
	},
}

// startCmd marks a task in progress.
var startCmd = &cobra.Command{
	Use:   "start [task_id]",
	Short: "Mark a task as in progress",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		pending := func(t models.Task) bool { return t.Status == models.StatusPending }
		task, err := resolveTask(svc, args, pending, "Select task to start")
		if err != nil {
			if err == promptui.ErrInterrupt || err == ErrNoTasksFound {
				fmt.Println("Nothing started.")
				return nil
			}
			return err
		}

		if err := svc.SetStatus(task.ID, models.StatusInProgress); err != nil {
			return err
		}
		fmt.Printf("Started %q\n", task.Title)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(startCmd)
}
