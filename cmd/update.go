package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

// renameCmd represents the rename command
var renameCmd = &cobra.Command{
	Use:   "rename [task_id] [new title...]",
	Short: "Rename a task",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		var taskArgs []string
		if len(args) > 0 {
			taskArgs = args[:1]
		}
		task, err := resolveTask(svc, taskArgs, nil, "Select task to rename")
		if err != nil {
			if err == promptui.ErrInterrupt || err == ErrNoTasksFound {
				fmt.Println("Rename cancelled.")
				return nil
			}
			return err
		}

		title := strings.TrimSpace(strings.Join(args[min(len(args), 1):], " "))
		if title == "" {
			prompt := promptui.Prompt{Label: "New title", Default: task.Title}
			title, err = prompt.Run()
			if err != nil {
				return err
			}
		}

		if err := svc.RenameTask(task.ID, title); err != nil {
			return err
		}
		fmt.Printf("Renamed %q to %q\n", task.Title, title)
		return nil
	},
}

// moveCmd represents the move command
var moveCmd = &cobra.Command{
	Use:   "move <task_id> [parent_id]",
	Short: "Move a task under another task",
	Long:  `Move a task under a new parent. Omitting the parent moves the task to the top level.`,
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		task, ok := svc.Store.Get(args[0])
		if !ok {
			return fmt.Errorf("task %s not found", args[0])
		}

		var parentID *string
		if len(args) == 2 {
			parentID = &args[1]
		}

		if err := svc.MoveTask(task.ID, parentID); err != nil {
			return err
		}
		if parentID == nil {
			fmt.Printf("Moved %q to the top level\n", task.Title)
		} else {
			fmt.Printf("Moved %q under %s\n", task.Title, *parentID)
		}
		return nil
	},
}

// reorderCmd represents the reorder command
var reorderCmd = &cobra.Command{
	Use:   "reorder <task_id> <index>",
	Short: "Move a task to a new position in the list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("index must be a number: %w", err)
		}

		if err := svc.ReorderTask(args[0], index); err != nil {
			return err
		}
		fmt.Printf("Moved task to position %d\n", index)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(reorderCmd)
}
