package cmd

import (
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"taskdeck/internal/backup"
)

// backupCmd groups the backup management subcommands.
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage task store backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a backup of the current store",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		svc.Backups.CreateBackup()
		fmt.Println("Backup created in", svc.Backups.Dir())
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		infos, err := svc.Backups.ListBackups()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No backups yet.")
			return nil
		}
		for _, info := range infos {
			kind := "version"
			if info.IsDaily {
				kind = "daily"
			}
			fmt.Printf("%-19s  %-7s  %6d bytes\n", info.Token(), kind, info.FileSize)
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [timestamp]",
	Short: "Restore the store from a backup",
	Long:  `Restore the store from the backup taken at the given timestamp. Without an argument, an interactive picker is shown. A pre-restore backup of the current state is always written first.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		var token string
		if len(args) > 0 {
			token = args[0]
		} else {
			token, err = selectBackupInteractive(svc.Backups)
			if err != nil {
				if err == promptui.ErrInterrupt {
					fmt.Println("Restore cancelled.")
					return nil
				}
				return err
			}
		}

		if err := svc.RestoreBackup(token); err != nil {
			return err
		}
		fmt.Println("Restored backup", token)
		fmt.Println("Undo history was cleared.")
		return nil
	},
}

var backupExportCmd = &cobra.Command{
	Use:   "export <archive.tar.zst>",
	Short: "Export all backups into a compressed archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		if err := svc.Backups.ExportArchive(args[0]); err != nil {
			return err
		}
		fmt.Println("Exported backups to", args[0])
		return nil
	},
}

var backupImportCmd = &cobra.Command{
	Use:   "import <archive.tar.zst>",
	Short: "Import backups from a compressed archive",
	Long:  `Import backups from an archive created with export. Existing backup files are never overwritten.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		if err := svc.Backups.ImportArchive(args[0]); err != nil {
			return err
		}
		fmt.Println("Imported backups from", args[0])
		return nil
	},
}

func selectBackupInteractive(m *backup.Manager) (string, error) {
	infos, err := m.ListBackups()
	if err != nil {
		return "", err
	}
	if len(infos) == 0 {
		return "", backup.ErrBackupNotFound
	}

	items := make([]string, len(infos))
	for i, info := range infos {
		kind := "version"
		if info.IsDaily {
			kind = "daily"
		}
		items[i] = fmt.Sprintf("%s (%s, %d bytes)", info.Token(), kind, info.FileSize)
	}

	prompt := promptui.Select{Label: "Select backup to restore", Items: items}
	i, _, err := prompt.Run()
	if err != nil {
		return "", err
	}
	return infos[i].Token(), nil
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupExportCmd)
	backupCmd.AddCommand(backupImportCmd)
}
