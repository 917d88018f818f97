package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/linkerlin/tgmonitor/internal/config"
	"github.com/linkerlin/tgmonitor/internal/db"
	"github.com/linkerlin/tgmonitor/internal/keywords"
	"github.com/linkerlin/tgmonitor/internal/orchestrator"
	"github.com/linkerlin/tgmonitor/internal/telegram"
)

var version = "dev"

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tgmonitor",
		Short:         "Forward Telegram group and channel messages that mention your keywords",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd.Context())
		},
	}
	cmd.AddCommand(newKeywordsCommand(), newVersionCommand())
	return cmd
}

func newKeywordsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keywords",
		Short: "Print the keywords the monitor would use, creating the default file if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store := keywords.NewStore(cfg.KeywordsPath())
			kw, err := store.Load()
			if err != nil {
				return fmt.Errorf("load %s: %w", store.Path(), err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, labelStyle.Render(store.Path()))
			for _, k := range kw {
				fmt.Fprintln(out, k)
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tgmonitor %s\n", version)
		},
	}
}

func runMonitor(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	printBanner(cfg)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	client, err := telegram.New(cfg.BotToken, store, cfg.Debug)
	if err != nil {
		return err
	}

	err = orchestrator.New(cfg, client).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printBanner(cfg *config.Config) {
	rows := [][2]string{
		{"target", fmt.Sprint(cfg.TargetUserID)},
		{"keywords", cfg.KeywordsPath()},
		{"poll", cfg.PollSchedule},
		{"retry", cfg.RetrySchedule},
		{"status", cfg.StatusInterval.String()},
		{"store", cfg.StorePath},
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("tgmonitor "+version) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&sb, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-9s", r[0])), r[1])
	}
	fmt.Fprint(os.Stderr, sb.String())
}
