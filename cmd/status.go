package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/scorebook/internal/formatter"
	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/shared"
)

func subjectArg(cmd *cli.Command) (string, error) {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return "", fmt.Errorf("%w: song id", shared.ErrMissingArgument)
	}
	return id, models.ValidateSubjectID(id)
}

// statusAction prints the current user's status of kind for a song.
func (r *Runner) statusAction(kind models.Kind) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		id, err := subjectArg(cmd)
		if err != nil {
			return err
		}
		format, err := formatter.ParseFormat(cmd.String("format"))
		if err != nil {
			return err
		}

		c, err := r.controller(kind)
		if err != nil {
			return err
		}
		status, err := c.GetStatus(ctx, id)
		if err != nil {
			return err
		}

		data, err := formatter.FormatStatus(status, format)
		if err != nil {
			return err
		}
		return r.writeBytes(data)
	}
}

// toggleAction flips kind for a song and waits for the server to confirm it.
//
// The optimistic value is printed straight away; a rejected toggle prints the restored status and
// returns the error.
func (r *Runner) toggleAction(kind models.Kind) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		id, err := subjectArg(cmd)
		if err != nil {
			return err
		}
		format, err := formatter.ParseFormat(cmd.String("format"))
		if err != nil {
			return err
		}
		if r.token() == "" {
			return fmt.Errorf("%w: run 'scorebook auth login' first", shared.ErrNotAuthenticated)
		}

		c, err := r.controller(kind)
		if err != nil {
			return err
		}
		if _, err := c.GetStatus(ctx, id); err != nil {
			return err
		}

		if timeout := cmd.Duration("timeout"); timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		p, err := c.Toggle(ctx, id)
		if err != nil {
			return err
		}
		if format == formatter.FormatText {
			r.writePlain("… %s\n", formatter.StatusLine(p.Visible()))
		}

		status, err := p.Wait(context.WithoutCancel(ctx))
		if err != nil {
			if format == formatter.FormatText {
				r.writePlain("✗ %s (%s)\n", formatter.StatusLine(status), p.Outcome())
			}
			return err
		}

		if format == formatter.FormatText {
			return r.writePlain("✓ %s\n", formatter.StatusLine(status))
		}
		data, err := formatter.FormatStatus(status, format)
		if err != nil {
			return err
		}
		return r.writeBytes(data)
	}
}

// historyAction prints the journaled toggles of kind, newest first.
func (r *Runner) historyAction(kind models.Kind) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		id := strings.TrimSpace(cmd.StringArg("id"))
		if id != "" {
			if err := models.ValidateSubjectID(id); err != nil {
				return err
			}
		}

		journal, err := r.toggleJournal()
		if err != nil {
			return err
		}
		records, err := journal.Recent(ctx, kind, id, cmd.Int("limit"))
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return r.writePlain("No %s toggles recorded yet\n", kind)
		}
		if err := r.writeBytes(formatter.JournalToText(records)); err != nil {
			return err
		}

		outcomes, err := journal.Outcomes(ctx)
		if err != nil {
			return err
		}
		return r.writePlainln("%d confirmed, %d rolled back, %d discarded",
			outcomes[models.OutcomeConfirmed], outcomes[models.OutcomeRolledBack], outcomes[models.OutcomeDiscarded])
	}
}
