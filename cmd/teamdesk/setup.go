package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/teamdesk/internal/credential"
	"github.com/nhle/teamdesk/internal/model"
)

type setupForm struct {
	baseURL string
	tenant  string
	userID  string
	email   string
	token   string
}

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Configure the server, the user and the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(configPath)
			if err != nil {
				return err
			}

			f := setupForm{
				baseURL: cfg.Server.BaseURL,
				tenant:  cfg.Server.Tenant,
				email:   cfg.User.Email,
			}
			if cfg.User.ID != 0 {
				f.userID = strconv.FormatInt(cfg.User.ID, 10)
			}

			if err := f.build().RunWithContext(cmd.Context()); err != nil {
				return fmt.Errorf("setup form: %w", err)
			}

			if err := f.apply(cfg); err != nil {
				return err
			}
			if err := model.SaveConfig(configPath, cfg); err != nil {
				return err
			}
			if f.token != "" {
				if err := credential.Set(credential.TokenKey, f.token); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved configuration to %s\n", configPath)
			return nil
		},
	}
}

func (f *setupForm) build() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server URL").
				Description("Root of the REST API").
				Placeholder("http://localhost:8000").
				Value(&f.baseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Tenant").
				Description("Organization subdomain, empty for none").
				Value(&f.tenant),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("User ID").
				Value(&f.userID).
				Validate(validateID),
			huh.NewInput().
				Title("Email").
				Value(&f.email),
			huh.NewInput().
				Title("Access Token").
				Description("Leave empty to keep the stored token").
				EchoMode(huh.EchoModePassword).
				Value(&f.token),
		),
	)
}

func (f *setupForm) apply(cfg *model.AppConfig) error {
	id, err := strconv.ParseInt(strings.TrimSpace(f.userID), 10, 64)
	if err != nil {
		return fmt.Errorf("parsing user id: %w", err)
	}
	cfg.Server.BaseURL = strings.TrimRight(strings.TrimSpace(f.baseURL), "/")
	cfg.Server.Tenant = strings.TrimSpace(f.tenant)
	cfg.User.ID = id
	cfg.User.Email = strings.TrimSpace(f.email)
	f.token = strings.TrimSpace(f.token)
	return nil
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL must start with http:// or https://")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}

func validateID(s string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("user id must be a positive number")
	}
	return nil
}
