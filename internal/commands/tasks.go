package commands

import (
	"context"

	"github.com/charbot/charbot/discord"
	"github.com/charbot/charbot/internal/gangs"
	"github.com/oklahomer/go-kasumi/logger"
	"github.com/oklahomer/go-sarah/v4"
)

type job func(ctx context.Context) error

// Tasks returns the scheduled jobs of the gang war. Jobs post their own
// announcements, so the results are always empty.
func (h *Handler) Tasks(config *gangs.Config) ([]*sarah.ScheduledTaskProps, error) {
	jobs := []struct {
		identifier string
		schedule   string
		run        job
	}{
		{"dues_start", config.DuesStartSchedule, h.startDues},
		{"dues_end", config.DuesEndSchedule, h.endDues},
		{"raids", config.RaidSchedule, h.resolveRaids},
		{"shakedown", config.ShakedownSchedule, h.randomShakedown},
	}

	props := make([]*sarah.ScheduledTaskProps, 0, len(jobs))
	for _, j := range jobs {
		p, err := sarah.NewScheduledTaskPropsBuilder().
			BotType(discord.DISCORD).
			Identifier(j.identifier).
			Func(h.task(j.identifier, j.run)).
			Schedule(config.Schedule(j.schedule)).
			DefaultDestination(discord.ChannelID(discord.FormatSnowflake(config.Announcements))).
			Build()
		if err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, nil
}

func (h *Handler) task(identifier string, run job) func(context.Context) ([]*sarah.ScheduledTaskResult, error) {
	return func(ctx context.Context) ([]*sarah.ScheduledTaskResult, error) {
		logger.Infof("Running scheduled task %s", identifier)
		if err := run(ctx); err != nil {
			logger.Errorf("Scheduled task %s failed: %+v", identifier, err)
			return nil, err
		}
		return nil, nil
	}
}

func (h *Handler) startDues(ctx context.Context) error {
	report, err := h.gangs.StartDuesCycle(ctx)
	if err != nil {
		return err
	}
	logger.Infof("Dues charged for %d gang(s), %d member(s) unpaid, deadline %s",
		len(report.Gangs), report.Unpaid(), report.Deadline)
	return nil
}

func (h *Handler) endDues(ctx context.Context) error {
	report, err := h.gangs.EndDuesCycle(ctx)
	if err != nil {
		return err
	}
	if report.Unpaid() > 0 {
		h.programLog(ctx, formatDuesEnd(report))
	}
	return nil
}

func formatDuesEnd(report gangs.DuesReport) string {
	return printer.Sprintf("Dues ended: %d member(s) removed, %d gang(s) disbanded.", report.Unpaid(), report.Disbanded())
}

func (h *Handler) resolveRaids(ctx context.Context) error {
	results, err := h.gangs.ResolveExpiredRaids(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		logger.Infof("Raid on %s resolved", r.Territory)
	}
	return nil
}

func (h *Handler) randomShakedown(ctx context.Context) error {
	_, err := h.gangs.Shakedown(ctx, false)
	return err
}
