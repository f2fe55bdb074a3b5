package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/notesmith/notesmith/internal/cli"
	"github.com/notesmith/notesmith/internal/note"
	"github.com/notesmith/notesmith/internal/registry"
)

// resolveNote finds a note by id or unique id prefix.
func resolveNote(reg *registry.Registry, arg string) (*note.Note, error) {
	if n, err := reg.Get(arg); err == nil {
		return n, nil
	}

	var match *note.Note
	for _, n := range reg.All() {
		if strings.HasPrefix(n.ID, arg) {
			if match != nil {
				return nil, fmt.Errorf("id prefix %q is ambiguous", arg)
			}
			match = n
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no note matches %q", arg)
	}
	return match, nil
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List notes, most recently edited first",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			notes := app.registry.All()
			if len(notes) == 0 {
				fmt.Println("No notes yet. Use `notesmith new` to create one.")
				return nil
			}

			bold := color.New(color.Bold)
			for _, n := range notes {
				title := n.Title
				if title == "" {
					title = "(untitled)"
				}
				bold.Printf("%s  %s\n", n.ID[:8], title)
				fmt.Printf("    updated %s  v%d",
					time.UnixMilli(n.UpdatedAt).Format("2006-01-02 15:04"), n.Version)
				if len(n.Tags) > 0 {
					fmt.Printf("  #%s", strings.Join(n.Tags, " #"))
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func newNewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "new [content]",
		Short: "Create a note",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := app.registry.Create(cmd.Context())
			if err != nil {
				return fmt.Errorf("registry.Create > %w", err)
			}
			if len(args) > 0 {
				if n, err = app.registry.UpdateContent(n.ID, strings.Join(args, " ")); err != nil {
					return fmt.Errorf("registry.UpdateContent > %w", err)
				}
			}

			fmt.Printf("Created note %s\n", n.ID)
			return nil
		},
	}
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := resolveNote(app.registry, args[0])
			if err != nil {
				return err
			}
			printNote(n)
			return nil
		},
	}
}

func printNote(n *note.Note) {
	bold := color.New(color.Bold)
	italic := color.New(color.Italic)

	title := n.Title
	if title == "" {
		title = "(untitled)"
	}
	bold.Println(title)
	fmt.Printf("id: %s  subject: %s  version: %d  updated: %s\n",
		n.ID, n.SubjectType, n.Version,
		time.UnixMilli(n.UpdatedAt).Format(time.RFC3339))
	if len(n.Tags) > 0 {
		fmt.Printf("tags: #%s\n", strings.Join(n.Tags, " #"))
	}
	if n.Content != "" {
		fmt.Println()
		fmt.Println(n.Content)
	}
	if len(n.Content) > cli.LargeNoteThreshold {
		color.New(color.FgYellow).Println("\nThis note is getting large; consider splitting it.")
	}
	if n.AIMetadata != nil {
		italic.Printf("\nsummary: %s\n", n.AIMetadata.Summary)
	}
	if n.AIInsights != nil {
		freshness := "fresh"
		if n.IsInsightsStale() {
			freshness = "stale"
		}
		italic.Printf("insights (%s): %s\n", freshness, n.AIInsights.Summary)
	}
}

func newWriteCommand() *cobra.Command {
	var fromFile string
	writeCommand := &cobra.Command{
		Use:   "write <id> [content]",
		Short: "Replace a note's content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := resolveNote(app.registry, args[0])
			if err != nil {
				return err
			}

			var content string
			if fromFile != "" {
				data, err := os.ReadFile(fromFile)
				if err != nil {
					return fmt.Errorf("os.ReadFile > %w", err)
				}
				content = string(data)
			} else {
				content = strings.Join(args[1:], " ")
			}

			updated, err := app.registry.UpdateContent(n.ID, content)
			if err != nil {
				return fmt.Errorf("registry.UpdateContent > %w", err)
			}
			fmt.Printf("Updated %q to version %d\n", updated.Title, updated.Version)
			return nil
		},
	}
	writeCommand.Flags().StringVar(&fromFile, "file", "", "read content from a file")
	return writeCommand
}

func newRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := resolveNote(app.registry, args[0])
			if err != nil {
				return err
			}
			renamed, err := app.registry.Rename(cmd.Context(), n.ID, args[1])
			if err != nil {
				return fmt.Errorf("registry.Rename > %w", err)
			}
			fmt.Printf("Renamed to %q\n", renamed.Title)
			return nil
		},
	}
}

func newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := resolveNote(app.registry, args[0])
			if err != nil {
				return err
			}
			if err := app.registry.Remove(cmd.Context(), n.ID); err != nil {
				return fmt.Errorf("registry.Remove > %w", err)
			}
			fmt.Printf("Deleted %s\n", n.ID)
			return nil
		},
	}
}

func newTagCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tag <id> [+tag|-tag ...]",
		Short: "Add or remove tags, e.g. `notesmith tag 1a2b +biology -draft`",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := resolveNote(app.registry, args[0])
			if err != nil {
				return err
			}

			for _, arg := range args[1:] {
				switch {
				case strings.HasPrefix(arg, "+"):
					if n, err = app.registry.AddTag(cmd.Context(), n.ID, arg[1:]); err != nil {
						return fmt.Errorf("registry.AddTag > %w", err)
					}
				case strings.HasPrefix(arg, "-"):
					if n, err = app.registry.RemoveTag(cmd.Context(), n.ID, arg[1:]); err != nil {
						return fmt.Errorf("registry.RemoveTag > %w", err)
					}
				default:
					return fmt.Errorf("tag argument %q must start with + or -", arg)
				}
			}

			if len(n.Tags) > 0 {
				fmt.Printf("tags: #%s\n", strings.Join(n.Tags, " #"))
			} else {
				fmt.Println("tags: none")
			}
			return nil
		},
	}
}
