package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gk")
	t.Setenv("WEBHOOK_API_KEY", "wk")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5004, cfg.Port)
	assert.Equal(t, 100, cfg.MaxQueueSize)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "Forum Posts", cfg.Airtable.Table)
	assert.Equal(t, "Tool Outputs", cfg.Airtable.OutputsTable)
	require.NoError(t, cfg.Validate())
}

func TestLoad_SubConfigPrefixes(t *testing.T) {
	t.Setenv("AIRTABLE_API_KEY", "at-key")
	t.Setenv("AIRTABLE_BASE_ID", "appXYZ")
	t.Setenv("FORUM_POST_URL", "https://forum.example.com/reply")
	t.Setenv("TEAMS_WEBHOOK_URL", "https://relay.example.com/hook")
	t.Setenv("TEAMS_CHAT_ID", "chat-1")
	t.Setenv("LOOKUP_URL", "https://forum.example.com/posts")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "at-key", cfg.Airtable.APIKey)
	assert.Equal(t, "appXYZ", cfg.Airtable.BaseID)
	assert.True(t, cfg.Airtable.Enabled())
	assert.True(t, cfg.ForumPost.Enabled())
	assert.True(t, cfg.Teams.Enabled())
	assert.True(t, cfg.Lookup.Enabled())
}

func TestLoad_CollaboratorsDisabledByDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Airtable.Enabled())
	assert.False(t, cfg.ForumPost.Enabled())
	assert.False(t, cfg.Teams.Enabled())
	assert.False(t, cfg.Lookup.Enabled())
}

func TestSanitize_Guardrails(t *testing.T) {
	tests := []struct {
		name string
		in   AppConfig
		want AppConfig
	}{
		{
			name: "negative values reset",
			in:   AppConfig{Port: -1, MaxQueueSize: -5, Workers: 0},
			want: AppConfig{Port: 5004, MaxQueueSize: 100, Workers: 1},
		},
		{
			name: "workers clamped high",
			in:   AppConfig{Port: 8080, MaxQueueSize: 10, Workers: 500},
			want: AppConfig{Port: 8080, MaxQueueSize: 10, Workers: 64},
		},
		{
			name: "port out of range reset",
			in:   AppConfig{Port: 70000, MaxQueueSize: 10, Workers: 2},
			want: AppConfig{Port: 5004, MaxQueueSize: 10, Workers: 2},
		},
		{
			name: "valid values untouched",
			in:   AppConfig{Port: 9000, MaxQueueSize: 250, Workers: 8},
			want: AppConfig{Port: 9000, MaxQueueSize: 250, Workers: 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Sanitize()
			assert.Equal(t, tt.want, tt.in)
		})
	}
}

func TestValidate_MissingSecrets(t *testing.T) {
	cfg := AppConfig{WebhookAPIKey: "wk"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")

	cfg = AppConfig{GeminiAPIKey: "gk"}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEBHOOK_API_KEY")
}
