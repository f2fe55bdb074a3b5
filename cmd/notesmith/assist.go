package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/notesmith/notesmith/internal/note"
)

func newAssistCommand() *cobra.Command {
	assistCommand := &cobra.Command{
		Use:   "assist",
		Short: "AI writing assistance",
	}
	assistCommand.AddCommand(
		newAssistSummarizeCommand(),
		newAssistTagsCommand(),
		newAssistContinueCommand(),
		newAssistGrammarCommand(),
		newAssistInsightsCommand(),
	)
	return assistCommand
}

func newAssistSummarizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <id>",
		Short: "Summarize a note and store the summary",
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

			italic := color.New(color.Italic)
			summary, err := app.orchestrator().Summarize(cmd.Context(), n, func(chunk string) {
				italic.Print(chunk)
			})
			fmt.Println()
			if err != nil {
				return err
			}

			if _, err := app.registry.ApplySummary(cmd.Context(), n.ID, summary); err != nil {
				return fmt.Errorf("registry.ApplySummary > %w", err)
			}
			return nil
		},
	}
}

func newAssistTagsCommand() *cobra.Command {
	var apply bool
	tagsCommand := &cobra.Command{
		Use:   "tags <id>",
		Short: "Suggest tags for a note",
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

			tags, err := app.orchestrator().SuggestTags(cmd.Context(), n)
			if err != nil {
				return err
			}
			if len(tags) == 0 {
				fmt.Println("No tag suggestions.")
				return nil
			}

			fmt.Printf("Suggested: #%s\n", strings.Join(tags, " #"))
			if apply {
				if _, err := app.registry.SetTags(cmd.Context(), n.ID, tags); err != nil {
					return fmt.Errorf("registry.SetTags > %w", err)
				}
				fmt.Println("Applied.")
			}
			return nil
		},
	}
	tagsCommand.Flags().BoolVar(&apply, "apply", false, "apply the suggested tags")
	return tagsCommand
}

func newAssistContinueCommand() *cobra.Command {
	var apply bool
	continueCommand := &cobra.Command{
		Use:   "continue <id>",
		Short: "Suggest a continuation of a note",
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
			if n.Content == "" {
				return fmt.Errorf("note %s is empty, nothing to continue", n.ID)
			}

			italic := color.New(color.Italic)
			continuation, err := app.orchestrator().ContinueWriting(cmd.Context(), n, func(chunk string) {
				italic.Print(chunk)
			})
			fmt.Println()
			if err != nil {
				return err
			}

			if apply {
				content := strings.TrimRight(n.Content, " ") + " " + continuation
				if _, err := app.registry.UpdateContent(n.ID, content); err != nil {
					return fmt.Errorf("registry.UpdateContent > %w", err)
				}
				fmt.Println("Added to the note.")
			}
			return nil
		},
	}
	continueCommand.Flags().BoolVar(&apply, "apply", false, "append the continuation to the note")
	return continueCommand
}

func newAssistGrammarCommand() *cobra.Command {
	var apply bool
	grammarCommand := &cobra.Command{
		Use:   "grammar <id>",
		Short: "Check a note's grammar",
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

			result, err := app.orchestrator().CheckGrammar(cmd.Context(), n)
			if err != nil {
				return err
			}
			if len(result.Issues) == 0 {
				fmt.Println("No issues found.")
				return nil
			}

			for _, issue := range result.Issues {
				fmt.Printf("- %q -> %q (%s)\n", issue.Original, issue.Suggestion, issue.Explanation)
			}
			if apply {
				if result.Truncated {
					return fmt.Errorf("note %s is too long for a full check; only the beginning was reviewed, not applying", n.ID)
				}
				if _, err := app.registry.UpdateContent(n.ID, result.CorrectedText); err != nil {
					return fmt.Errorf("registry.UpdateContent > %w", err)
				}
				fmt.Println("Applied the corrected text.")
			}
			return nil
		},
	}
	grammarCommand.Flags().BoolVar(&apply, "apply", false, "replace the note content with the corrected text")
	return grammarCommand
}

func newAssistInsightsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "insights <id>",
		Short: "Generate study insights for a note",
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

			insights, err := app.orchestrator().GenerateInsights(cmd.Context(), n)
			if err != nil {
				return err
			}
			printInsights(insights)

			if err := app.registry.ApplyInsights(cmd.Context(), n.ID, insights); err != nil {
				return fmt.Errorf("registry.ApplyInsights > %w", err)
			}
			return nil
		},
	}
}

func printInsights(insights *note.Insights) {
	color.New(color.Bold).Println("Insights")
	fmt.Println(insights.Summary)
	if len(insights.Definitions) > 0 {
		fmt.Println("Definitions:")
		for _, d := range insights.Definitions {
			fmt.Printf("- %s: %s\n", d.Term, d.Explanation)
		}
	}
	if insights.AdditionalContext != "" {
		fmt.Println(insights.AdditionalContext)
	}
	if len(insights.StudyQuestions) > 0 {
		fmt.Println("Study questions:")
		for _, q := range insights.StudyQuestions {
			fmt.Printf("- %s\n", q)
		}
	}
}
