package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/notesmith/notesmith/internal/backup"
	"github.com/notesmith/notesmith/internal/registry"
)

func newExportCommand() *cobra.Command {
	var outFile string
	exportCommand := &cobra.Command{
		Use:   "export",
		Short: "Export all notes to a backup file",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.registry.Flush(cmd.Context()); err != nil {
				return fmt.Errorf("registry.Flush > %w", err)
			}

			now := time.Now()
			data, err := backup.Export(app.registry.All(), now).Marshal()
			if err != nil {
				return fmt.Errorf("backup.Export > %w", err)
			}

			filename := outFile
			if filename == "" {
				filename = backup.Filename(now)
			}
			if err := os.WriteFile(filename, data, 0644); err != nil {
				return fmt.Errorf("os.WriteFile > %w", err)
			}
			fmt.Printf("Exported %d notes to %s\n", len(app.registry.All()), filename)
			return nil
		},
	}
	exportCommand.Flags().StringVar(&outFile, "out", "", "output file (default note-taker-backup-<date>.json)")
	return exportCommand
}

func newImportCommand() *cobra.Command {
	var mode string
	importCommand := &cobra.Command{
		Use:   "import <file>",
		Short: "Import notes from a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			importMode := registry.ImportMode(mode)
			if importMode != registry.ImportReplace && importMode != registry.ImportMerge {
				return fmt.Errorf("invalid mode %q, valid modes are %q or %q", mode, registry.ImportReplace, registry.ImportMerge)
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("os.ReadFile > %w", err)
			}
			notes, err := backup.Parse(data)
			if err != nil {
				return err
			}

			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.registry.Import(cmd.Context(), notes, importMode)
			if err != nil {
				return fmt.Errorf("registry.Import > %w", err)
			}
			fmt.Printf("Imported %d notes (%d new, %d updated)\n",
				result.NewCount+result.UpdatedCount, result.NewCount, result.UpdatedCount)
			return nil
		},
	}
	importCommand.Flags().StringVar(&mode, "mode", string(registry.ImportMerge), "import mode: replace or merge")
	return importCommand
}
