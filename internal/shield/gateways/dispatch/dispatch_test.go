package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libreshield/shieldd/internal/shield/common/clock"
	"github.com/libreshield/shieldd/internal/shield/common/log"
	"github.com/libreshield/shieldd/internal/shield/domain"
	"github.com/libreshield/shieldd/internal/shield/gateways/dispatch/wire"
	"github.com/libreshield/shieldd/internal/shield/repos/override"
	"github.com/libreshield/shieldd/internal/shield/repos/rules"
	"github.com/libreshield/shieldd/internal/shield/repos/stats"
	"github.com/libreshield/shieldd/internal/shield/services/engine"
	"github.com/libreshield/shieldd/internal/shield/services/gate"
)

// memStore is an in-memory policy.Store for handler tests.
type memStore struct {
	mu  sync.Mutex
	rec domain.Record
	err error
}

func newMemStore() *memStore { return &memStore{rec: domain.DefaultRecord()} }

func (s *memStore) Load(context.Context) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.Record{}, s.err
	}
	return s.rec.Clone(), nil
}

func (s *memStore) SaveSettings(_ context.Context, set domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rec.Settings = set.Clone()
	return nil
}

func (s *memStore) SaveOverrides(_ context.Context, overrides []domain.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rec.Overrides = append([]domain.Override{}, overrides...)
	return nil
}

func (s *memStore) SaveCredential(_ context.Context, c *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if c == nil {
		s.rec.Credential = nil
		return nil
	}
	cc := c.Clone()
	s.rec.Credential = &cc
	return nil
}

func (s *memStore) SaveStats(_ context.Context, st domain.UsageStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rec.UsageStats = st.Clone()
	return nil
}

func (s *memStore) Replace(_ context.Context, r domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rec = r.Clone()
	return nil
}

func (s *memStore) Reset(ctx context.Context) error {
	return s.Replace(ctx, domain.DefaultRecord())
}

func (s *memStore) Close() error { return nil }

type holderProvider struct {
	holder *rules.Holder
}

func (p holderProvider) Current(context.Context) (engine.PolicyView, error) {
	return p.holder.Current(), nil
}

type testRig struct {
	handler *Handler
	store   *memStore
	clk     *clock.MockClock
	gate    *gate.Gate
}

func newRig(t *testing.T, settings domain.Settings) *testRig {
	t.Helper()
	logger := log.NewNoopLogger()
	clk := &clock.MockClock{CurrentTime: time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)}
	store := newMemStore()
	store.rec.Settings = settings.Clone()

	holder, err := rules.NewHolder(settings, rules.HolderOptions{})
	require.NoError(t, err)

	overrides := override.New(override.Options{Clock: clk, Saver: store, Logger: logger})
	recorder := stats.New(domain.NewUsageStats(), store, logger)
	credGate := gate.New(gate.Options{Store: store, Clock: clk, Logger: logger})

	eng := engine.New(engine.Options{
		Policy:    holderProvider{holder: holder},
		Overrides: overrides,
		Stats:     recorder,
		Clock:     clk,
		Logger:    logger,
	})

	h := New(Options{
		Engine:    eng,
		Gate:      credGate,
		Overrides: overrides,
		Stats:     recorder,
		Holder:    holder,
		Store:     store,
		Clock:     clk,
		Logger:    logger,
	})
	return &testRig{handler: h, store: store, clk: clk, gate: credGate}
}

func rigSettings() domain.Settings {
	s := domain.DefaultSettings()
	s.BlockedDomains = []string{"ads.com"}
	s.BlockedKeywords = []string{"poker"}
	s.AllowedSites = []string{"school.edu"}
	return s
}

func request(t *testing.T, action wire.Action, payload any) wire.Request {
	t.Helper()
	req := wire.Request{Action: action}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		req.Payload = data
	}
	return req
}

func resultAs(t *testing.T, resp wire.Response, out any) {
	t.Helper()
	require.True(t, resp.OK, "expected success, got %s: %s", resp.ErrorKind, resp.Error)
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func TestHandle_UnknownActionIsInvalidInput(t *testing.T) {
	rig := newRig(t, rigSettings())

	resp := rig.handler.Handle(context.Background(), wire.Request{Action: "explode"})

	assert.False(t, resp.OK)
	assert.Equal(t, wire.ErrorKindInvalidInput, resp.ErrorKind)
}

func TestHandle_MalformedPayload(t *testing.T) {
	rig := newRig(t, rigSettings())

	resp := rig.handler.Handle(context.Background(), wire.Request{
		Action:  wire.ActionClassify,
		Payload: json.RawMessage(`{"url": 42}`),
	})

	assert.False(t, resp.OK)
	assert.Equal(t, wire.ErrorKindInvalidInput, resp.ErrorKind)
}

func TestHandle_Classify(t *testing.T) {
	rig := newRig(t, rigSettings())

	var result wire.ClassifyResult
	resp := rig.handler.Handle(context.Background(), request(t, wire.ActionClassify, wire.ClassifyPayload{URL: "https://x.ads.com/"}))
	resultAs(t, resp, &result)
	assert.Equal(t, "redirect", result.Verdict)
	assert.Equal(t, "Blocked Domain: x.ads.com", result.Reason)

	resp = rig.handler.Handle(context.Background(), request(t, wire.ActionClassify, wire.ClassifyPayload{URL: "https://example.org/"}))
	resultAs(t, resp, &result)
	assert.Equal(t, "allow", result.Verdict)
}

func TestHandle_ScanPageWithHTMLExtraction(t *testing.T) {
	rig := newRig(t, rigSettings())

	var result wire.KeywordResult
	resp := rig.handler.Handle(context.Background(), request(t, wire.ActionScanPage, wire.ScanPagePayload{
		URL:  "https://example.org/",
		HTML: `<html><script>var poker = 1;</script><body>play poker tonight</body></html>`,
	}))
	resultAs(t, resp, &result)
	assert.True(t, result.Matched)
	assert.Equal(t, "poker", result.Keyword)
}

func TestHandle_ScanPageScriptTextDoesNotMatch(t *testing.T) {
	rig := newRig(t, rigSettings())

	var result wire.KeywordResult
	resp := rig.handler.Handle(context.Background(), request(t, wire.ActionScanPage, wire.ScanPagePayload{
		URL:  "https://example.org/",
		HTML: `<html><script>var poker = 1;</script><body>nothing here</body></html>`,
	}))
	resultAs(t, resp, &result)
	assert.False(t, result.Matched)
}

func TestHandle_OverrideLifecycle(t *testing.T) {
	rig := newRig(t, rigSettings())
	ctx := context.Background()

	// Grant.
	var grant wire.OverrideGrantResult
	resp := rig.handler.Handle(ctx, request(t, wire.ActionRequestOverride, wire.RequestOverridePayload{
		Kind: "domain", Value: "ads.com", Minutes: 30,
	}))
	resultAs(t, resp, &grant)
	assert.NotEmpty(t, grant.OverrideID)
	assert.Equal(t, rig.clk.Now().Add(30*time.Minute), grant.ExpiresAt)

	// The blocked domain now classifies as a temporary allow.
	var classify wire.ClassifyResult
	resp = rig.handler.Handle(ctx, request(t, wire.ActionClassify, wire.ClassifyPayload{URL: "https://x.ads.com/"}))
	resultAs(t, resp, &classify)
	assert.Equal(t, "allow_temporarily", classify.Verdict)

	// Listed while live.
	var listed []domain.Override
	resp = rig.handler.Handle(ctx, request(t, wire.ActionListOverrides, nil))
	resultAs(t, resp, &listed)
	require.Len(t, listed, 1)

	// Remove revokes immediately.
	resp = rig.handler.Handle(ctx, request(t, wire.ActionRemoveOverride, wire.RemoveOverridePayload{ID: grant.OverrideID}))
	require.True(t, resp.OK)

	resp = rig.handler.Handle(ctx, request(t, wire.ActionClassify, wire.ClassifyPayload{URL: "https://x.ads.com/"}))
	resultAs(t, resp, &classify)
	assert.Equal(t, "redirect", classify.Verdict)
}

func TestHandle_OverrideInvalidDuration(t *testing.T) {
	rig := newRig(t, rigSettings())

	resp := rig.handler.Handle(context.Background(), request(t, wire.ActionRequestOverride, wire.RequestOverridePayload{
		Kind: "domain", Value: "ads.com", Minutes: 9999,
	}))
	assert.False(t, resp.OK)
	assert.Equal(t, wire.ErrorKindInvalidInput, resp.ErrorKind)
}

func TestHandle_PasswordGatesOverrides(t *testing.T) {
	rig := newRig(t, rigSettings())
	ctx := context.Background()

	resp := rig.handler.Handle(ctx, request(t, wire.ActionSetPassword, wire.SetPasswordPayload{Password: "hunter2"}))
	require.True(t, resp.OK)

	// No password supplied.
	resp = rig.handler.Handle(ctx, request(t, wire.ActionRequestOverride, wire.RequestOverridePayload{
		Kind: "domain", Value: "ads.com", Minutes: 30,
	}))
	assert.False(t, resp.OK)
	assert.Equal(t, wire.ErrorKindAuthRequired, resp.ErrorKind)

	// Wrong password.
	resp = rig.handler.Handle(ctx, request(t, wire.ActionRequestOverride, wire.RequestOverridePayload{
		Kind: "domain", Value: "ads.com", Minutes: 30, Password: "nope",
	}))
	assert.False(t, resp.OK)
	assert.Equal(t, wire.ErrorKindWrongCredential, resp.ErrorKind)

	// Correct password.
	resp = rig.handler.Handle(ctx, request(t, wire.ActionRequestOverride, wire.RequestOverridePayload{
		Kind: "domain", Value: "ads.com", Minutes: 30, Password: "hunter2",
	}))
	assert.True(t, resp.OK)
}

func TestHandle_LockoutSurfacesAsLocked(t *testing.T) {
	rig := newRig(t, rigSettings())
	ctx := context.Background()

	resp := rig.handler.Handle(ctx, request(t, wire.ActionSetPassword, wire.SetPasswordPayload{Password: "hunter2"}))
	require.True(t, resp.OK)

	for i := 0; i < 5; i++ {
		rig.handler.Handle(ctx, request(t, wire.ActionRequestOverride, wire.RequestOverridePayload{
			Kind: "domain", Value: "ads.com", Minutes: 30, Password: "wrong",
		}))
	}

	resp = rig.handler.Handle(ctx, request(t, wire.ActionRequestOverride, wire.RequestOverridePayload{
		Kind: "domain", Value: "ads.com", Minutes: 30, Password: "hunter2",
	}))
	assert.Equal(t, wire.ErrorKindLocked, resp.ErrorKind)
}

func TestHandle_AddListEntryCommaSplitAndCrossListRemoval(t *testing.T) {
	rig := newRig(t, rigSettings())
	ctx := context.Background()

	var settings domain.Settings
	resp := rig.handler.Handle(ctx, request(t, wire.ActionAddListEntry, wire.ListEntryPayload{
		List: wire.ListBlockedDomains, Value: " School.EDU , new.com, ads.com ",
	}))
	resultAs(t, resp, &settings)

	assert.Equal(t, []string{"ads.com", "school.edu", "new.com"}, settings.BlockedDomains,
		"comma-split, canonicalized, de-duplicated")
	assert.Empty(t, settings.AllowedSites, "blocking a site pulls it off the allowlist")

	// Allowing it again pulls it back off the blocklist.
	resp = rig.handler.Handle(ctx, request(t, wire.ActionAddListEntry, wire.ListEntryPayload{
		List: wire.ListAllowedSites, Value: "school.edu",
	}))
	resultAs(t, resp, &settings)
	assert.Equal(t, []string{"ads.com", "new.com"}, settings.BlockedDomains)
	assert.Equal(t, []string{"school.edu"}, settings.AllowedSites)

	// Mutations persist and take effect for classification immediately.
	var classify wire.ClassifyResult
	resp = rig.handler.Handle(ctx, request(t, wire.ActionClassify, wire.ClassifyPayload{URL: "https://new.com/"}))
	resultAs(t, resp, &classify)
	assert.Equal(t, "redirect", classify.Verdict)
	assert.Equal(t, settings.BlockedDomains, rig.store.rec.BlockedDomains)
}

func TestHandle_RemoveListEntry(t *testing.T) {
	rig := newRig(t, rigSettings())

	var settings domain.Settings
	resp := rig.handler.Handle(context.Background(), request(t, wire.ActionRemoveListEntry, wire.ListEntryPayload{
		List: wire.ListBlockedKeywords, Value: "POKER",
	}))
	resultAs(t, resp, &settings)
	assert.Empty(t, settings.BlockedKeywords, "removal is case-insensitive")
}

func TestHandle_ListEntryRejectsUnknownList(t *testing.T) {
	rig := newRig(t, rigSettings())

	resp := rig.handler.Handle(context.Background(), request(t, wire.ActionAddListEntry, wire.ListEntryPayload{
		List: "secretList", Value: "x.com",
	}))
	assert.Equal(t, wire.ErrorKindInvalidInput, resp.ErrorKind)
}

func TestHandle_SetEnabledIsNotGated(t *testing.T) {
	rig := newRig(t, rigSettings())
	ctx := context.Background()

	resp := rig.handler.Handle(ctx, request(t, wire.ActionSetPassword, wire.SetPasswordPayload{Password: "hunter2"}))
	require.True(t, resp.OK)

	var settings domain.Settings
	resp = rig.handler.Handle(ctx, request(t, wire.ActionSetEnabled, wire.SetEnabledPayload{Enabled: false}))
	resultAs(t, resp, &settings)
	assert.False(t, settings.IsBlockingEnabled)

	var classify wire.ClassifyResult
	resp = rig.handler.Handle(ctx, request(t, wire.ActionClassify, wire.ClassifyPayload{URL: "https://x.ads.com/"}))
	resultAs(t, resp, &classify)
	assert.Equal(t, "allow", classify.Verdict)
}

func TestHandle_GetSettingsAndStats(t *testing.T) {
	rig := newRig(t, rigSettings())
	ctx := context.Background()

	var settings domain.Settings
	resp := rig.handler.Handle(ctx, request(t, wire.ActionGetSettings, nil))
	resultAs(t, resp, &settings)
	assert.Equal(t, []string{"ads.com"}, settings.BlockedDomains)

	// Drive one block, then read stats.
	resp = rig.handler.Handle(ctx, request(t, wire.ActionClassify, wire.ClassifyPayload{URL: "https://x.ads.com/"}))
	require.True(t, resp.OK)

	var st domain.UsageStats
	resp = rig.handler.Handle(ctx, request(t, wire.ActionGetStats, nil))
	resultAs(t, resp, &st)
	assert.Equal(t, 1, st.BlocksToday)
	assert.Equal(t, 1, st.BlocksByKey["domain:ads.com"])
}

func TestHandle_RecordBlock(t *testing.T) {
	rig := newRig(t, rigSettings())
	ctx := context.Background()

	resp := rig.handler.Handle(ctx, request(t, wire.ActionRecordBlock, wire.RecordBlockPayload{
		Kind: "keyword", Value: "poker",
	}))
	require.True(t, resp.OK)

	var st domain.UsageStats
	resp = rig.handler.Handle(ctx, request(t, wire.ActionGetStats, nil))
	resultAs(t, resp, &st)
	assert.Equal(t, 1, st.BlocksByKey["keyword:poker"])
}

func TestHandle_ResetWipesEverything(t *testing.T) {
	rig := newRig(t, rigSettings())
	ctx := context.Background()

	resp := rig.handler.Handle(ctx, request(t, wire.ActionSetPassword, wire.SetPasswordPayload{Password: "forgotten"}))
	require.True(t, resp.OK)
	resp = rig.handler.Handle(ctx, request(t, wire.ActionRequestOverride, wire.RequestOverridePayload{
		Kind: "domain", Value: "ads.com", Minutes: 30, Password: "forgotten",
	}))
	require.True(t, resp.OK)

	// Wrong phrase refused.
	resp = rig.handler.Handle(ctx, request(t, wire.ActionReset, wire.ResetPayload{Confirmation: "reset"}))
	assert.Equal(t, wire.ErrorKindInvalidInput, resp.ErrorKind)

	// Correct phrase wipes settings, credential, overrides, and stats.
	resp = rig.handler.Handle(ctx, request(t, wire.ActionReset, wire.ResetPayload{Confirmation: "RESET"}))
	require.True(t, resp.OK)

	var settings domain.Settings
	resp = rig.handler.Handle(ctx, request(t, wire.ActionGetSettings, nil))
	resultAs(t, resp, &settings)
	assert.Empty(t, settings.BlockedDomains)
	assert.True(t, settings.IsBlockingEnabled)

	assert.False(t, rig.gate.HasCredential())
	assert.Nil(t, rig.store.rec.Credential)

	var listed []domain.Override
	resp = rig.handler.Handle(ctx, request(t, wire.ActionListOverrides, nil))
	resultAs(t, resp, &listed)
	assert.Empty(t, listed)
}

func TestHandle_ExportImportIdentity(t *testing.T) {
	rig := newRig(t, rigSettings())
	ctx := context.Background()

	resp := rig.handler.Handle(ctx, request(t, wire.ActionRequestOverride, wire.RequestOverridePayload{
		Kind: "keyword", Value: "poker", Minutes: 60,
	}))
	require.True(t, resp.OK)

	var exported domain.Record
	resp = rig.handler.Handle(ctx, request(t, wire.ActionExportSettings, nil))
	resultAs(t, resp, &exported)
	assert.Equal(t, []string{"ads.com"}, exported.BlockedDomains)
	require.Len(t, exported.Overrides, 1)

	// Import into a fresh rig and export again: identity.
	other := newRig(t, domain.DefaultSettings())
	resp = other.handler.Handle(ctx, request(t, wire.ActionImportSettings, wire.ImportPayload{Record: exported}))
	require.True(t, resp.OK)

	var reExported domain.Record
	resp = other.handler.Handle(ctx, request(t, wire.ActionExportSettings, nil))
	resultAs(t, resp, &reExported)
	assert.Equal(t, exported, reExported)

	// Imported policy is live immediately.
	var classify wire.ClassifyResult
	resp = other.handler.Handle(ctx, request(t, wire.ActionClassify, wire.ClassifyPayload{URL: "https://x.ads.com/"}))
	resultAs(t, resp, &classify)
	assert.Equal(t, "redirect", classify.Verdict)
}

func TestHandle_ExportGatedWhenCredentialExists(t *testing.T) {
	rig := newRig(t, rigSettings())
	ctx := context.Background()

	resp := rig.handler.Handle(ctx, request(t, wire.ActionSetPassword, wire.SetPasswordPayload{Password: "hunter2"}))
	require.True(t, resp.OK)

	resp = rig.handler.Handle(ctx, request(t, wire.ActionExportSettings, nil))
	assert.Equal(t, wire.ErrorKindAuthRequired, resp.ErrorKind)

	resp = rig.handler.Handle(ctx, request(t, wire.ActionExportSettings, wire.ExportPayload{Password: "hunter2"}))
	assert.True(t, resp.OK)
}

func TestHandle_ImportReplacesCredential(t *testing.T) {
	rig := newRig(t, rigSettings())
	ctx := context.Background()

	rec := domain.DefaultRecord()
	rec.Credential = nil
	resp := rig.handler.Handle(ctx, request(t, wire.ActionImportSettings, wire.ImportPayload{Record: rec}))
	require.True(t, resp.OK)
	assert.False(t, rig.gate.HasCredential())
}

func TestHandle_ChangeAndRemovePassword(t *testing.T) {
	rig := newRig(t, rigSettings())
	ctx := context.Background()

	resp := rig.handler.Handle(ctx, request(t, wire.ActionSetPassword, wire.SetPasswordPayload{Password: "old"}))
	require.True(t, resp.OK)

	resp = rig.handler.Handle(ctx, request(t, wire.ActionChangePassword, wire.ChangePasswordPayload{
		CurrentPassword: "bad", NewPassword: "new",
	}))
	assert.Equal(t, wire.ErrorKindWrongCredential, resp.ErrorKind)

	resp = rig.handler.Handle(ctx, request(t, wire.ActionChangePassword, wire.ChangePasswordPayload{
		CurrentPassword: "old", NewPassword: "new",
	}))
	require.True(t, resp.OK)

	resp = rig.handler.Handle(ctx, request(t, wire.ActionRemovePassword, wire.RemovePasswordPayload{CurrentPassword: "new"}))
	require.True(t, resp.OK)
	assert.False(t, rig.gate.HasCredential())
}

func TestHandle_UpdateSettingsMergesDefaults(t *testing.T) {
	rig := newRig(t, rigSettings())

	var settings domain.Settings
	resp := rig.handler.Handle(context.Background(), request(t, wire.ActionUpdateSettings, wire.UpdateSettingsPayload{
		Settings: domain.Settings{BlockedDomains: []string{"only.com"}, IsBlockingEnabled: true},
	}))
	resultAs(t, resp, &settings)

	assert.Equal(t, []string{"only.com"}, settings.BlockedDomains)
	assert.Equal(t, domain.DefaultBlockPageMessage, settings.BlockPageMessage)
	assert.NotNil(t, settings.BlockedKeywords)
}

func TestHandle_StorageFailureSurfacesAsStorageKind(t *testing.T) {
	rig := newRig(t, rigSettings())
	rig.store.err = domain.ErrStorageUnavailable

	resp := rig.handler.Handle(context.Background(), request(t, wire.ActionAddListEntry, wire.ListEntryPayload{
		List: wire.ListBlockedDomains, Value: "x.com",
	}))
	assert.False(t, resp.OK)
	assert.Equal(t, wire.ErrorKindStorageUnavailable, resp.ErrorKind)
}
