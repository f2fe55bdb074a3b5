package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/notesmith/notesmith/internal/ai"
	"github.com/notesmith/notesmith/internal/cli"
	"github.com/notesmith/notesmith/internal/clock"
	"github.com/notesmith/notesmith/internal/conflict"
	"github.com/notesmith/notesmith/internal/idle"
	"github.com/notesmith/notesmith/internal/notify"
)

func newEditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Start an interactive editing session",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			detector := conflict.NewDetector()
			unsubscribe := app.notifier.Subscribe(func(msg notify.Message) {
				detector.Observe(msg)
			})
			defer unsubscribe()

			orchestrator := app.orchestrator()
			defer orchestrator.Close()

			auto := ai.NewAutoInsight(orchestrator, app.registry, app.cfg.AutoInsight.Enabled)
			monitor := idle.NewMonitor(
				clock.System(),
				time.Duration(app.cfg.AutoInsight.IdleSeconds)*time.Second,
				func() { auto.Run(cmd.Context()) },
			)
			monitor.Start()
			defer monitor.Stop()

			session := cli.NewEditSession(app.registry, detector, orchestrator, monitor)
			fmt.Println("notesmith interactive session (:help for commands)")
			return session.Run(cmd.Context())
		},
	}
}
