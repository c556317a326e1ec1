package cmd

import (
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var (
	addNotes  string
	addParent string
	addTags   []string
)

// addCmd represents the add command
var addCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a new task",
	Long:  `Add a new task. The title is taken from the arguments, or prompted for interactively when omitted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		title := strings.TrimSpace(strings.Join(args, " "))
		if title == "" {
			prompt := promptui.Prompt{
				Label: "Task title",
				Validate: func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("title cannot be empty")
					}
					return nil
				},
			}
			title, err = prompt.Run()
			if err != nil {
				return err
			}
		}

		var parentID *string
		if addParent != "" {
			parentID = &addParent
		}

		task, err := svc.AddTask(title, addNotes, parentID, addTags)
		if err != nil {
			return err
		}
		fmt.Printf("Added %q (ID: %s)\n", task.Title, task.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)

	addCmd.Flags().StringVarP(&addNotes, "notes", "n", "", "free-form notes for the task")
	addCmd.Flags().StringVarP(&addParent, "parent", "p", "", "ID of the parent task")
	addCmd.Flags().StringSliceVarP(&addTags, "tag", "t", nil, "tags (repeatable)")
}
