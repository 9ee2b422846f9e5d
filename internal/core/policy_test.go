package core

import (
	"testing"

	apperrors "orctorrent/internal/errors"
	"orctorrent/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatchPolicy(t *testing.T) {
	anonymous := model.PolicyAnonymous
	tests := []struct {
		name         string
		mutate       func(d *model.DesiredPolicy)
		wantErr      bool
		wantWarnings []string
		check        func(t *testing.T, p model.PolicyState)
	}{
		{
			name:   "Defaults round through unchanged",
			mutate: func(d *model.DesiredPolicy) {},
			check: func(t *testing.T, p model.PolicyState) {
				assert.True(t, p.Effective.DiscoveryAllowed)
				assert.True(t, p.Effective.DirectPeerAllowed)
			},
		},
		{
			name: "Anonymous with UPnP warns",
			mutate: func(d *model.DesiredPolicy) {
				d.AnonymousMode = true
				d.UPnPNATPMPEnabled = true
				d.Profile = &anonymous
			},
			wantWarnings: []string{WarningAnonUPnP},
			check: func(t *testing.T, p model.PolicyState) {
				assert.False(t, p.Effective.DirectPeerAllowed)
				assert.True(t, p.Effective.AnonymousMode, "desired is copied into effective")
				assert.Equal(t, model.SeverityWarn, p.Warnings[0].Severity)
			},
		},
		{
			name: "Private torrents disable discovery",
			mutate: func(d *model.DesiredPolicy) {
				d.EnforcePrivateTorrents = true
			},
			check: func(t *testing.T, p model.PolicyState) {
				assert.False(t, p.Effective.DiscoveryAllowed)
				assert.True(t, p.Effective.DirectPeerAllowed)
			},
		},
		{
			name: "Invalid encryption",
			mutate: func(d *model.DesiredPolicy) {
				d.PeerEncryption = "sometimes"
			},
			wantErr: true,
		},
		{
			name: "Invalid profile",
			mutate: func(d *model.DesiredPolicy) {
				bad := model.PolicyProfile("paranoid")
				d.Profile = &bad
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			desired := model.DefaultDesiredPolicy()
			tt.mutate(&desired)

			p, _, err := h.state.PatchPolicy(desired, false)
			if tt.wantErr {
				assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput), "got %v", err)
				assert.Equal(t, uint64(1), h.state.Policy().Version, "rejected patches leave state alone")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint64(2), p.Version)
			assert.True(t, p.Effective.NetworkAllowed)

			var codes []string
			for _, w := range p.Warnings {
				codes = append(codes, w.Code)
			}
			assert.Equal(t, tt.wantWarnings, codes)
			if tt.check != nil {
				tt.check(t, p)
			}
		})
	}
}

func TestPatchPolicy_VersionAlwaysBumps(t *testing.T) {
	h := newHarness(t)
	desired := model.DefaultDesiredPolicy()
	for i := 0; i < 3; i++ {
		_, _, err := h.state.PatchPolicy(desired, false)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(4), h.state.Policy().Version)
}

func TestPatchPolicy_ReturnsCopy(t *testing.T) {
	h := newHarness(t)
	p := h.state.Policy()
	*p.Desired.Profile = model.PolicyHardened
	p.Disabled["anonymous_mode"] = model.ToggleDisabled{Disabled: true}

	fresh := h.state.Policy()
	assert.Equal(t, model.PolicyStandard, *fresh.Desired.Profile)
	assert.False(t, fresh.Disabled["anonymous_mode"].Disabled)
}

func TestPatchPolicy_KillSwitchGate(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.state.PatchKillSwitch(model.PatchKillSwitchRequest{Enabled: ptr(true)}, false)
	require.NoError(t, err)

	p, enf, err := h.state.PatchPolicy(model.DefaultDesiredPolicy(), false)
	require.NoError(t, err)
	assert.False(t, enf.Changed)
	assert.False(t, p.Effective.NetworkAllowed)
	require.Len(t, p.Warnings, 1)
	assert.Equal(t, WarningVPNRequired, p.Warnings[0].Code)
	assert.Equal(t, model.SeverityBlock, p.Warnings[0].Severity)

	p, enf, err = h.state.PatchPolicy(model.DefaultDesiredPolicy(), true)
	require.NoError(t, err)
	assert.Equal(t, model.KillSwitchArmed, enf.To)
	assert.True(t, p.Effective.NetworkAllowed)
	assert.Empty(t, p.Warnings)
}

func TestPatchKillSwitch(t *testing.T) {
	h := newHarness(t)

	ks, enf, err := h.state.PatchKillSwitch(model.PatchKillSwitchRequest{Enabled: ptr(true)}, false)
	require.NoError(t, err)
	assert.True(t, ks.Enabled)
	assert.Equal(t, model.KillSwitchDisarmed, ks.EnforcementState, "no VPN means nothing to arm against")
	assert.False(t, enf.Changed)
	assert.True(t, h.state.KillSwitchBlocks())
	assert.Equal(t, uint64(2), h.state.Policy().Version, "network gate flip bumps the version")

	ks, enf, err = h.state.PatchKillSwitch(model.PatchKillSwitchRequest{}, true)
	require.NoError(t, err)
	assert.Equal(t, model.KillSwitchArmed, ks.EnforcementState)
	assert.Equal(t, model.KillSwitchDisarmed, enf.From)
	assert.False(t, h.state.KillSwitchBlocks())
	require.NotNil(t, ks.LastEnforcementMs)
	assert.Equal(t, h.clock.Now().UnixMilli(), *ks.LastEnforcementMs)

	ks, _, err = h.state.PatchKillSwitch(model.PatchKillSwitchRequest{Enabled: ptr(false)}, false)
	require.NoError(t, err)
	assert.Equal(t, model.KillSwitchDisarmed, ks.EnforcementState)
	assert.False(t, h.state.KillSwitchBlocks())
	assert.True(t, h.state.Policy().Effective.NetworkAllowed)
}

func TestPatchKillSwitch_Fields(t *testing.T) {
	h := newHarness(t)
	scope := model.ScopeAppLevel
	ks, _, err := h.state.PatchKillSwitch(model.PatchKillSwitchRequest{
		Scope:          &scope,
		GracePeriodSec: ptr(uint64(3600)),
		Triggers:       &model.KillSwitchTriggers{DisableDHTPexLPD: true},
		VPNSource: &model.VPNSourcePatch{
			AutoDetect:      ptr(false),
			AllowedAdapters: []string{" wg0 ", "WG0", "tun1", "   "},
		},
	}, false)
	require.NoError(t, err)

	assert.False(t, ks.Enabled, "omitted fields keep their value")
	assert.Equal(t, model.ScopeAppLevel, ks.Scope)
	assert.Equal(t, uint64(3600), ks.GracePeriodSec)
	assert.False(t, ks.Triggers.PauseAllTorrents)
	assert.True(t, ks.Triggers.DisableDHTPexLPD)
	assert.False(t, ks.VPNSource.AutoDetect)
	assert.Equal(t, []string{"wg0", "tun1"}, ks.VPNSource.AllowedAdapters)
}

func TestPatchKillSwitch_Invalid(t *testing.T) {
	bad := model.KillSwitchScope("everything")
	tests := []struct {
		name string
		req  model.PatchKillSwitchRequest
	}{
		{"Grace too long", model.PatchKillSwitchRequest{GracePeriodSec: ptr(uint64(3601))}},
		{"Unknown scope", model.PatchKillSwitchRequest{Scope: &bad}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, _, err := h.state.PatchKillSwitch(tt.req, true)
			assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput), "got %v", err)
			assert.Equal(t, model.DefaultKillSwitchConfig().GracePeriodSec, h.state.KillSwitch().GracePeriodSec)
		})
	}
}

func TestNormalizeAdapters(t *testing.T) {
	assert.Equal(t, []string{}, normalizeAdapters(nil))
	assert.Equal(t, []string{"Mullvad", "proton0"}, normalizeAdapters([]string{"Mullvad", "mullvad ", "proton0", ""}))
}
