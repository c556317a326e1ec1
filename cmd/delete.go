package cmd

import (
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete [task_id]",
	Short: "Delete a task and its subtasks",
	Long:  `Delete a task by its ID. Subtasks are deleted with it, as one undoable action. A confirmation prompt is always displayed.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		task, err := resolveTask(svc, args, nil, "Select task to delete")
		if err != nil {
			if err == promptui.ErrInterrupt || err == ErrNoTasksFound {
				fmt.Println("Deletion cancelled.")
				return nil
			}
			return err
		}

		subtasks := len(svc.Store.Descendants(task.ID))
		label := fmt.Sprintf("Delete %q", task.Title)
		if subtasks > 0 {
			label = fmt.Sprintf("Delete %q and %d subtask(s)", task.Title, subtasks)
		}
		confirm := promptui.Prompt{Label: label, IsConfirm: true}
		if _, err := confirm.Run(); err != nil {
			fmt.Println("Deletion cancelled.")
			return nil
		}

		if err := svc.DeleteTask(task.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted %q\n", task.Title)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
