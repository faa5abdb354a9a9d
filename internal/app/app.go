// Package app wires configuration into the stores and services shared by
// the server and the standalone crew runner.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"dental-recall/internal/agent"
	"dental-recall/internal/config"
	"dental-recall/internal/crew"
	"dental-recall/internal/platform/twilio"
	"dental-recall/internal/reminder"
	"dental-recall/internal/storage"
)

type App struct {
	Config    *config.Config
	Log       zerolog.Logger
	Location  *time.Location
	Store     storage.Store
	Crew      *crew.Crew
	Reminders *reminder.Service
}

// Build opens storage and assembles the crew. Close releases what Build
// opened.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		DSN:         cfg.Storage.DSN,
		BusyTimeout: busy,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	c, err := BuildCrew(cfg, loc, log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &App{
		Config:    cfg,
		Log:       log,
		Location:  loc,
		Store:     st,
		Crew:      c,
		Reminders: reminder.NewService(c, st, log),
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// BuildCrew assembles the reminder crew from cfg.
func BuildCrew(cfg *config.Config, loc *time.Location, log zerolog.Logger) (*crew.Crew, error) {
	def, err := crew.LoadDefinition(afero.NewOsFs(), cfg.Crew.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("load crew config: %w", err)
	}
	timeout, err := cfg.CrewTimeout()
	if err != nil {
		return nil, err
	}
	start, end, err := cfg.BusinessHours()
	if err != nil {
		return nil, err
	}
	reviewer, err := agent.NewClient(cfg.LLM.Provider, agent.Config{
		APIKey: cfg.LLM.APIKey,
		Model:  cfg.LLM.Model,
	})
	if err != nil {
		return nil, err
	}

	opts := crew.Options{
		Policy: crew.Policy{
			BusinessStart:  start,
			BusinessEnd:    end,
			RevokedConsent: cfg.Compliance.RevokedConsent,
		},
		Practice: crew.Practice{
			Name:           cfg.Practice.Name,
			RescheduleLink: cfg.Practice.RescheduleLink,
		},
		Reviewer:  reviewer,
		Fs:        afero.NewOsFs(),
		ReportDir: cfg.Crew.ReportDir,
		Timeout:   timeout,
		Location:  loc,
		Log:       log,
	}
	if cfg.Twilio.Enabled() {
		opts.Notifier = twilio.NewClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
	} else {
		log.Warn().Msg("twilio not configured, reminders are logged instead of sent")
	}
	return crew.New(def, opts), nil
}
