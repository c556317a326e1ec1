package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskdeck/models"
)

var listAll bool

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long:  `List tasks as an indented tree. Completed and cancelled tasks are hidden unless --all is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		tasks := svc.Store.Tasks()
		if len(tasks) == 0 {
			fmt.Println("No tasks.")
			return nil
		}

		roots, children := visibleTree(tasks, listAll)

		var walk func(t models.Task, depth int)
		walk = func(t models.Task, depth int) {
			for i := 0; i < depth; i++ {
				fmt.Print("  ")
			}
			fmt.Printf("%s %s [%s] (%s)\n", marker(t.Status), t.Title, t.Status, t.ID)
			for _, c := range children[t.ID] {
				walk(c, depth+1)
			}
		}
		for _, r := range roots {
			walk(r, 0)
		}
		return nil
	},
}

// visibleTree splits tasks into top-level roots and a parent-to-children
// index, applying the status filter. A visible task whose parent is
// filtered out (or unknown) is promoted to a root so it never disappears
// from the listing.
func visibleTree(tasks []models.Task, includeAll bool) ([]models.Task, map[string][]models.Task) {
	visible := make(map[string]bool, len(tasks))
	kept := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if !includeAll && (t.Status == models.StatusCompleted || t.Status == models.StatusCancelled) {
			continue
		}
		visible[t.ID] = true
		kept = append(kept, t)
	}

	children := make(map[string][]models.Task)
	var roots []models.Task
	for _, t := range kept {
		if t.ParentID != nil && visible[*t.ParentID] {
			children[*t.ParentID] = append(children[*t.ParentID], t)
		} else {
			roots = append(roots, t)
		}
	}
	return roots, children
}

func marker(status models.TaskStatus) string {
	switch status {
	case models.StatusCompleted:
		return "[x]"
	case models.StatusCancelled:
		return "[-]"
	case models.StatusInProgress:
		return "[>]"
	default:
		return "[ ]"
	}
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "include completed and cancelled tasks")
}
