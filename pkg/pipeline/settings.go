package pipeline

import (
	"context"

	"github.com/sw33tLie/jobscope/pkg/scoring"
	"github.com/sw33tLie/jobscope/pkg/storage"
	"github.com/tidwall/gjson"
)

// SettingsStore is where user settings are read from at the start of each
// pass. storage.KV satisfies it.
type SettingsStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// Toggles select which detail fields the pipeline loads.
type Toggles struct {
	HireRate         bool `json:"checkboxHireRate"`
	ConnectsRequired bool `json:"checkboxConnectsRequired"`
	MemberSince      bool `json:"checkboxMemberSince"`
	AutoLoad         bool `json:"checkboxAutoLoad"`
}

// DefaultToggles enables everything.
func DefaultToggles() Toggles {
	return Toggles{HireRate: true, ConnectsRequired: true, MemberSince: true, AutoLoad: true}
}

// WantsDetails reports whether any detail field is enabled.
func (t Toggles) WantsDetails() bool {
	return t.HireRate || t.ConnectsRequired || t.MemberSince
}

// ParseToggles reads stored toggles over the defaults.
func ParseToggles(raw []byte) Toggles {
	return DefaultToggles().Merge(raw)
}

// Merge overlays the JSON object raw onto t. Only JSON booleans override a
// current value.
func (t Toggles) Merge(raw []byte) Toggles {
	if !gjson.ValidBytes(raw) {
		return t
	}
	obj := gjson.ParseBytes(raw)
	if !obj.IsObject() {
		return t
	}
	set := func(field *bool, key string) {
		if v := obj.Get(key); v.Type == gjson.True || v.Type == gjson.False {
			*field = v.Bool()
		}
	}
	set(&t.HireRate, "checkboxHireRate")
	set(&t.ConnectsRequired, "checkboxConnectsRequired")
	set(&t.MemberSince, "checkboxMemberSince")
	set(&t.AutoLoad, "checkboxAutoLoad")
	return t
}

// settings returns the toggles and score settings for one pass. Stored
// values win over the configured ones; read failures keep the configured
// ones.
func (r *Runner) settings(ctx context.Context) (Toggles, scoring.Config) {
	toggles, score := r.cfg.Toggles, r.cfg.ScoreConfig
	if r.cfg.Settings == nil {
		return toggles, score
	}

	if raw, ok, err := r.cfg.Settings.Get(ctx, storage.KeyToggles); err != nil {
		r.log.Warnf("Could not read toggles: %v", err)
	} else if ok {
		toggles = ParseToggles(raw)
	}
	if raw, ok, err := r.cfg.Settings.Get(ctx, storage.KeyScoreSettings); err != nil {
		r.log.Warnf("Could not read score settings: %v", err)
	} else if ok {
		score = scoring.DefaultConfig().Merge(raw)
	}
	return toggles, score
}
