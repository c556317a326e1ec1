package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the store and report external changes",
	Long:  `Watch the task store and print a line whenever another process changes it. Useful for debugging multi-process setups. Stop with Ctrl-C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		err = svc.OnChanged(func() {
			fmt.Printf("[%s] store changed externally (%d tasks)\n",
				time.Now().Format("15:04:05"), len(svc.Store.Tasks()))
		})
		if err != nil {
			return err
		}

		fmt.Println("Watching", svc.Store.Path(), "- press Ctrl-C to stop")
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		fmt.Println("\nStopped.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
