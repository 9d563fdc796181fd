package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/shared"
	"github.com/desertthunder/scorebook/internal/tasks"
	"github.com/desertthunder/scorebook/internal/ui"
)

// TUI launches the interactive song browser.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	logPath := r.config.Log.File
	if logPath == "" {
		logPath = "./tmp/scorebook-tui.log"
	}
	fileLogger, err := shared.NewFileLogger(logPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, r.logger.GetLevel())
	r.SetLogger(fileLogger)

	catalogue, err := r.catalogueFor(cmd.Bool("local"))
	if err != nil {
		return err
	}
	likes, err := r.controller(models.KindLike)
	if err != nil {
		return err
	}
	favourites, err := r.controller(models.KindFavourite)
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, ui.Options{
		Catalogue:  catalogue,
		Engine:     tasks.NewCatalogueEngine(catalogue, nil, fileLogger),
		Likes:      likes,
		Favourites: favourites,
		PageSize:   cmd.Int("limit"),
		Logger:     fileLogger,
	})
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
