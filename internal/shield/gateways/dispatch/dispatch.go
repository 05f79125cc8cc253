// Package dispatch exposes the engine as a message contract: a closed set of
// tagged operations with typed payloads. Unknown tags are rejected as invalid
// input rather than silently ignored.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/libreshield/shieldd/internal/shield/common/clock"
	"github.com/libreshield/shieldd/internal/shield/common/log"
	"github.com/libreshield/shieldd/internal/shield/common/pagetext"
	"github.com/libreshield/shieldd/internal/shield/domain"
	"github.com/libreshield/shieldd/internal/shield/gateways/dispatch/wire"
	"github.com/libreshield/shieldd/internal/shield/repos/override"
	"github.com/libreshield/shieldd/internal/shield/repos/policy"
	"github.com/libreshield/shieldd/internal/shield/repos/rules"
	"github.com/libreshield/shieldd/internal/shield/repos/stats"
	"github.com/libreshield/shieldd/internal/shield/services/engine"
	"github.com/libreshield/shieldd/internal/shield/services/gate"
)

// Handler routes messages to the engine, gate, and repositories.
type Handler struct {
	engine    *engine.Engine
	gate      *gate.Gate
	overrides *override.Store
	stats     *stats.Recorder
	holder    *rules.Holder
	store     policy.Store
	clock     clock.Clock
	logger    log.Logger
	validate  *validator.Validate
}

// Options collects the handler's collaborators.
type Options struct {
	Engine    *engine.Engine
	Gate      *gate.Gate
	Overrides *override.Store
	Stats     *stats.Recorder
	Holder    *rules.Holder
	Store     policy.Store
	Clock     clock.Clock
	Logger    log.Logger
}

// New constructs a Handler.
func New(opts Options) *Handler {
	return &Handler{
		engine:    opts.Engine,
		gate:      opts.Gate,
		overrides: opts.Overrides,
		stats:     opts.Stats,
		holder:    opts.Holder,
		store:     opts.Store,
		clock:     opts.Clock,
		logger:    opts.Logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Handle executes one request and always returns a response; failures are
// carried in the response rather than panicking the transport.
func (h *Handler) Handle(ctx context.Context, req wire.Request) wire.Response {
	result, err := h.route(ctx, req)
	if err != nil {
		kind := wire.ErrorKindOf(err)
		if kind == wire.ErrorKindInternal {
			h.logger.Error(map[string]any{"action": req.Action, "error": err}, "Operation failed")
		}
		return wire.Response{OK: false, ErrorKind: kind, Error: err.Error()}
	}
	return wire.Response{OK: true, Result: result}
}

func (h *Handler) route(ctx context.Context, req wire.Request) (any, error) {
	switch req.Action {
	case wire.ActionClassify:
		return h.classify(ctx, req.Payload)
	case wire.ActionClassifyKeyword:
		return h.classifyKeyword(ctx, req.Payload)
	case wire.ActionScanPage:
		return h.scanPage(ctx, req.Payload)
	case wire.ActionRequestOverride:
		return h.requestOverride(ctx, req.Payload)
	case wire.ActionListOverrides:
		return h.listOverrides(ctx)
	case wire.ActionRemoveOverride:
		return h.removeOverride(ctx, req.Payload)
	case wire.ActionRecordBlock:
		return h.recordBlock(ctx, req.Payload)
	case wire.ActionGetStats:
		return h.stats.Snapshot(), nil
	case wire.ActionSetPassword:
		return h.setPassword(ctx, req.Payload)
	case wire.ActionChangePassword:
		return h.changePassword(ctx, req.Payload)
	case wire.ActionRemovePassword:
		return h.removePassword(ctx, req.Payload)
	case wire.ActionReset:
		return h.reset(ctx, req.Payload)
	case wire.ActionGetSettings:
		return h.holder.Current().Settings(), nil
	case wire.ActionUpdateSettings:
		return h.updateSettings(ctx, req.Payload)
	case wire.ActionAddListEntry:
		return h.addListEntry(ctx, req.Payload)
	case wire.ActionRemoveListEntry:
		return h.removeListEntry(ctx, req.Payload)
	case wire.ActionSetEnabled:
		return h.setEnabled(ctx, req.Payload)
	case wire.ActionExportSettings:
		return h.exportSettings(ctx, req.Payload)
	case wire.ActionImportSettings:
		return h.importSettings(ctx, req.Payload)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, req.Action)
	}
}

// decode unmarshals and validates a payload into v.
func (h *Handler) decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", domain.ErrInvalidInput, err)
	}
	if err := h.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// authorize enforces the credential gate for mutating operations.
func (h *Handler) authorize(password string) error {
	if h.gate.HasCredential() && password == "" {
		return domain.ErrAuthRequired
	}
	return h.gate.Authorize(password)
}

// applySettings persists a settings snapshot, then publishes the new index.
func (h *Handler) applySettings(ctx context.Context, s domain.Settings) error {
	if err := h.store.SaveSettings(ctx, s); err != nil {
		return err
	}
	return h.holder.Swap(s)
}

func (h *Handler) classify(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.ClassifyPayload
	if err := h.decode(payload, &p); err != nil {
		return nil, err
	}
	v, err := h.engine.ClassifyRequest(ctx, p.URL)
	if err != nil {
		return nil, err
	}
	return wire.ClassifyResult{Verdict: v.Kind.String(), Reason: v.Reason}, nil
}

func (h *Handler) classifyKeyword(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.ClassifyKeywordPayload
	if err := h.decode(payload, &p); err != nil {
		return nil, err
	}
	matched, reason := h.engine.ClassifyKeyword(ctx, p.Keyword, p.PageText)
	return wire.KeywordResult{Matched: matched, Reason: reason, Keyword: strings.TrimSpace(p.Keyword)}, nil
}

func (h *Handler) scanPage(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.ScanPagePayload
	if err := h.decode(payload, &p); err != nil {
		return nil, err
	}
	text := p.PageText
	if text == "" && p.HTML != "" {
		text = pagetext.Extract(p.HTML)
	}
	v, err := h.engine.ScanPage(ctx, p.URL, text)
	if err != nil {
		return nil, err
	}
	if v.Kind != domain.VerdictRedirect {
		return wire.KeywordResult{Matched: false}, nil
	}
	return wire.KeywordResult{Matched: true, Reason: v.Reason, Keyword: v.Matched}, nil
}

func (h *Handler) requestOverride(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.RequestOverridePayload
	if err := h.decode(payload, &p); err != nil {
		return nil, err
	}
	kind, err := domain.ParseRuleKind(p.Kind)
	if err != nil {
		return nil, err
	}
	if err := h.authorize(p.Password); err != nil {
		return nil, err
	}
	o, err := h.overrides.Grant(ctx, kind, p.Value, p.Minutes)
	if err != nil {
		return nil, err
	}
	return wire.OverrideGrantResult{OverrideID: o.ID, ExpiresAt: o.ExpiresAt}, nil
}

func (h *Handler) listOverrides(_ context.Context) (any, error) {
	return h.overrides.ListActive(h.clock.Now()), nil
}

func (h *Handler) removeOverride(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.RemoveOverridePayload
	if err := h.decode(payload, &p); err != nil {
		return nil, err
	}
	if err := h.overrides.Remove(ctx, p.ID); err != nil {
		return nil, err
	}
	return wire.OKResult{}, nil
}

func (h *Handler) recordBlock(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.RecordBlockPayload
	if err := h.decode(payload, &p); err != nil {
		return nil, err
	}
	kind, err := domain.ParseRuleKind(p.Kind)
	if err != nil {
		return nil, err
	}
	if err := h.stats.RecordBlock(ctx, kind, p.Value); err != nil {
		return nil, err
	}
	return wire.OKResult{}, nil
}

func (h *Handler) setPassword(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.SetPasswordPayload
	if err := h.decode(payload, &p); err != nil {
		return nil, err
	}
	if err := h.gate.SetPassword(ctx, p.Password); err != nil {
		return nil, err
	}
	return wire.OKResult{}, nil
}

func (h *Handler) changePassword(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.ChangePasswordPayload
	if err := h.decode(payload, &p); err != nil {
		return nil, err
	}
	if err := h.gate.ChangePassword(ctx, p.CurrentPassword, p.NewPassword); err != nil {
		return nil, err
	}
	return wire.OKResult{}, nil
}

func (h *Handler) removePassword(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.RemovePasswordPayload
	if err := h.decode(payload, &p); err != nil {
		return nil, err
	}
	if err := h.gate.RemovePassword(ctx, p.CurrentPassword); err != nil {
		return nil, err
	}
	return wire.OKResult{}, nil
}

// reset wipes every piece of policy state. It is gated by the confirmation
// phrase, not the password, because its purpose is forgotten-password recovery.
func (h *Handler) reset(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.ResetPayload
	if err := h.decode(payload, &p); err != nil {
		return nil, err
	}
	if err := h.gate.ConfirmReset(p.Confirmation); err != nil {
		return nil, err
	}
	if err := h.store.Reset(ctx); err != nil {
		return nil, err
	}
	if err := h.overrides.ReplaceAll(ctx, nil); err != nil {
		return nil, err
	}
	if err := h.stats.Replace(ctx, domain.NewUsageStats()); err != nil {
		return nil, err
	}
	if err := h.holder.Swap(domain.DefaultSettings()); err != nil {
		return nil, err
	}
	return wire.OKResult{}, nil
}

func (h *Handler) updateSettings(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.UpdateSettingsPayload
	if err := h.decode(payload, &p); err != nil {
		return nil, err
	}
	if err := h.authorize(p.Password); err != nil {
		return nil, err
	}
	s := p.Settings.MergeDefaults()
	if err := h.applySettings(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// addListEntry accepts comma-separated values, de-duplicates, and keeps the
// domain lists mutually exclusive: blocking a site removes it from the
// allowlist and vice versa.
func (h *Handler) addListEntry(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.ListEntryPayload
	if err := h.decode(payload, &p); err != nil {
		return nil, err
	}
	if err := h.authorize(p.Password); err != nil {
		return nil, err
	}

	s := h.holder.Current().Settings()
	values := splitEntries(p.Value, p.List)
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no values to add", domain.ErrInvalidInput)
	}
	for _, v := range values {
		switch p.List {
		case wire.ListBlockedDomains:
			s.BlockedDomains = appendUnique(s.BlockedDomains, v)
			s.AllowedSites = removeValue(s.AllowedSites, v)
		case wire.ListAllowedSites:
			s.AllowedSites = appendUnique(s.AllowedSites, v)
			s.BlockedDomains = removeValue(s.BlockedDomains, v)
		case wire.ListBlockedKeywords:
			s.BlockedKeywords = appendUnique(s.BlockedKeywords, v)
		}
	}
	if err := h.applySettings(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (h *Handler) removeListEntry(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.ListEntryPayload
	if err := h.decode(payload, &p); err != nil {
		return nil, err
	}
	if err := h.authorize(p.Password); err != nil {
		return nil, err
	}

	s := h.holder.Current().Settings()
	switch p.List {
	case wire.ListBlockedDomains:
		s.BlockedDomains = removeValue(s.BlockedDomains, p.Value)
	case wire.ListAllowedSites:
		s.AllowedSites = removeValue(s.AllowedSites, p.Value)
	case wire.ListBlockedKeywords:
		s.BlockedKeywords = removeValue(s.BlockedKeywords, p.Value)
	}
	if err := h.applySettings(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// setEnabled flips the kill switch. It is deliberately not password-gated:
// turning protection on must never require a password, and the popup toggle
// matches that behavior for off as well.
func (h *Handler) setEnabled(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.SetEnabledPayload
	if err := h.decode(payload, &p); err != nil {
		return nil, err
	}
	s := h.holder.Current().Settings()
	s.IsBlockingEnabled = p.Enabled
	if err := h.applySettings(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// exportSettings returns the full persisted record. Gated when a credential
// exists, since the record includes the credential material itself.
func (h *Handler) exportSettings(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.ExportPayload
	if err := h.decode(payload, &p); err != nil {
		return nil, err
	}
	if err := h.authorize(p.Password); err != nil {
		return nil, err
	}
	return h.store.Load(ctx)
}

// importSettings replaces the full persisted record and reloads every
// component from it. Export followed by import is the identity.
func (h *Handler) importSettings(ctx context.Context, payload json.RawMessage) (any, error) {
	var p wire.ImportPayload
	if err := h.decode(payload, &p); err != nil {
		return nil, err
	}
	if err := h.authorize(p.Password); err != nil {
		return nil, err
	}

	rec := p.Record.Clone()
	rec.Settings = rec.Settings.MergeDefaults()
	if rec.UsageStats.BlocksByKey == nil {
		rec.UsageStats.BlocksByKey = make(map[string]int)
	}
	if rec.Overrides == nil {
		rec.Overrides = []domain.Override{}
	}

	if err := h.store.Replace(ctx, rec); err != nil {
		return nil, err
	}
	if err := h.holder.Swap(rec.Settings); err != nil {
		return nil, err
	}
	if err := h.overrides.ReplaceAll(ctx, rec.Overrides); err != nil {
		return nil, err
	}
	if err := h.stats.Replace(ctx, rec.UsageStats); err != nil {
		return nil, err
	}
	h.gate.Replace(rec.Credential)
	return wire.OKResult{}, nil
}

// splitEntries splits comma-separated input and normalizes each value for
// its target list.
func splitEntries(raw string, list wire.ListName) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		var v string
		if list == wire.ListBlockedKeywords {
			v = strings.TrimSpace(p)
		} else {
			v = domain.CanonicalHost(p)
		}
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, e := range list {
		if strings.EqualFold(e, v) {
			return list
		}
	}
	return append(list, v)
}

func removeValue(list []string, v string) []string {
	out := list[:0]
	for _, e := range list {
		if !strings.EqualFold(e, v) {
			out = append(out, e)
		}
	}
	return out
}
