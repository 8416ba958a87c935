package app

import "rotabot/internal/config"

// configToggles resolves the feature flags from the live config on every
// read, so a hot-reloaded flip reaches the router without a restart.
type configToggles struct {
	cfgm *config.Manager
}

func (t configToggles) ShortsEnabled() bool {
	cfg := t.cfgm.Get()
	return cfg == nil || cfg.Features.ShortsOn()
}

func (t configToggles) IndexingEnabled() bool {
	cfg := t.cfgm.Get()
	return cfg == nil || cfg.Features.IndexingOn()
}
