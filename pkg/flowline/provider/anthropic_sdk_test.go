package provider_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowline/runtime/pkg/flowline/config"
	"github.com/flowline/runtime/pkg/flowline/provider"
)

func TestAnthropicSDKProvider_Info(t *testing.T) {
	p := provider.NewAnthropicSDKProvider(config.New(map[string]any{
		"apiKey": "test-key",
		"model":  "claude-sonnet-test",
	}))

	info := p.Info()
	assert.Equal(t, "sdk", info.Type)
	assert.Equal(t, "claude-sonnet-test", info.Model)
	assert.True(t, info.Connected)
}

func TestAnthropicSDKProvider_DefaultModel(t *testing.T) {
	p := provider.NewAnthropicSDKProvider(config.New(nil))
	assert.NotEmpty(t, p.Info().Model)
}
