package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/teamdesk/internal/model"
)

func TestValidateURL(t *testing.T) {
	require.NoError(t, validateURL("https://api.example.com"))
	require.NoError(t, validateURL("http://localhost:8000"))
	require.Error(t, validateURL(""))
	require.Error(t, validateURL("ftp://example.com"))
	require.Error(t, validateURL("http://"))
}

func TestValidateID(t *testing.T) {
	require.NoError(t, validateID("42"))
	require.NoError(t, validateID(" 7 "))
	require.Error(t, validateID("0"))
	require.Error(t, validateID("abc"))
}

func TestSetupFormApply(t *testing.T) {
	cfg := model.DefaultAppConfig()
	f := setupForm{
		baseURL: " https://api.example.com/ ",
		tenant:  " acme ",
		userID:  "12",
		email:   "dev@example.com",
		token:   " secret ",
	}

	require.NoError(t, f.apply(cfg))
	require.Equal(t, "https://api.example.com", cfg.Server.BaseURL)
	require.Equal(t, "acme", cfg.Server.Tenant)
	require.Equal(t, int64(12), cfg.User.ID)
	require.Equal(t, "dev@example.com", cfg.User.Email)
	require.Equal(t, "secret", f.token)

	bad := setupForm{userID: "x"}
	require.Error(t, bad.apply(cfg))
}
