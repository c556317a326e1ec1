package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// undoCmd represents the undo command
var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Undo the most recent edit",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		desc, err := svc.UndoLast()
		if err != nil {
			return err
		}
		if desc == "" {
			fmt.Println("Nothing to undo.")
			return nil
		}
		fmt.Printf("Undid: %s\n", desc)
		return nil
	},
}

// redoCmd represents the redo command
var redoCmd = &cobra.Command{
	Use:   "redo",
	Short: "Redo the most recently undone edit",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		desc, err := svc.RedoLast()
		if err != nil {
			return err
		}
		if desc == "" {
			fmt.Println("Nothing to redo.")
			return nil
		}
		fmt.Printf("Redid: %s\n", desc)
		return nil
	},
}

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the undo history, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		descs := svc.Undo.UndoDescriptions()
		if len(descs) == 0 {
			fmt.Println("No undo history.")
			return nil
		}
		for i, d := range descs {
			fmt.Printf("%2d. %s\n", i+1, d)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(redoCmd)
	rootCmd.AddCommand(historyCmd)
}
