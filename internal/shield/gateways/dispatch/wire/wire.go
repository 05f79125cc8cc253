// Package wire defines the message contract shared by the dispatcher and its
// transports: action tags, payload shapes, result shapes, and the mapping
// from domain errors to stable error kinds.
package wire

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/libreshield/shieldd/internal/shield/domain"
)

// Action tags one request with the operation it invokes. The set is closed;
// the dispatcher rejects anything else.
type Action string

const (
	ActionClassify        Action = "classify"
	ActionClassifyKeyword Action = "classifyKeyword"
	ActionScanPage        Action = "scanPage"
	ActionRequestOverride Action = "requestOverride"
	ActionListOverrides   Action = "listOverrides"
	ActionRemoveOverride  Action = "removeOverride"
	ActionRecordBlock     Action = "recordBlock"
	ActionGetStats        Action = "getStats"
	ActionSetPassword     Action = "setPassword"
	ActionChangePassword  Action = "changePassword"
	ActionRemovePassword  Action = "removePassword"
	ActionReset           Action = "reset"
	ActionGetSettings     Action = "getSettings"
	ActionUpdateSettings  Action = "updateSettings"
	ActionAddListEntry    Action = "addListEntry"
	ActionRemoveListEntry Action = "removeListEntry"
	ActionSetEnabled      Action = "setEnabled"
	ActionExportSettings  Action = "exportSettings"
	ActionImportSettings  Action = "importSettings"
)

// ListName identifies one of the three policy lists.
type ListName string

const (
	ListBlockedDomains  ListName = "blockedDomains"
	ListBlockedKeywords ListName = "blockedKeywords"
	ListAllowedSites    ListName = "allowedSites"
)

// Request is one incoming message.
type Request struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the envelope every operation answers with. Exactly one of
// Result or Error/ErrorKind is populated.
type Response struct {
	OK        bool   `json:"ok"`
	ErrorKind string `json:"errorKind,omitempty"`
	Error     string `json:"error,omitempty"`
	Result    any    `json:"result,omitempty"`
}

// Error kinds carried in Response.ErrorKind. Clients branch on these, never
// on error message text.
const (
	ErrorKindInvalidInput       = "invalid_input"
	ErrorKindAuthRequired       = "auth_required"
	ErrorKindWrongCredential    = "wrong_credential"
	ErrorKindLocked             = "locked"
	ErrorKindStorageUnavailable = "storage_unavailable"
	ErrorKindInternal           = "internal"
)

// ErrorKindOf maps a domain error chain to its wire kind.
func ErrorKindOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return ErrorKindInvalidInput
	case errors.Is(err, domain.ErrAuthRequired):
		return ErrorKindAuthRequired
	case errors.Is(err, domain.ErrWrongCredential):
		return ErrorKindWrongCredential
	case errors.Is(err, domain.ErrLocked):
		return ErrorKindLocked
	case errors.Is(err, domain.ErrStorageUnavailable):
		return ErrorKindStorageUnavailable
	default:
		return ErrorKindInternal
	}
}

// ClassifyPayload asks for a verdict on one navigation attempt.
type ClassifyPayload struct {
	URL string `json:"url" validate:"required"`
}

// ClassifyKeywordPayload asks whether one keyword matches page text.
type ClassifyKeywordPayload struct {
	Keyword  string `json:"keyword" validate:"required"`
	PageText string `json:"pageText"`
}

// ScanPagePayload asks for a full keyword scan of one page. Callers supply
// either pre-extracted text or raw HTML; text wins when both are present.
type ScanPagePayload struct {
	URL      string `json:"url" validate:"required"`
	PageText string `json:"pageText"`
	HTML     string `json:"html"`
}

// RequestOverridePayload asks for a time-boxed exception.
type RequestOverridePayload struct {
	Kind     string `json:"kind" validate:"required"`
	Value    string `json:"value" validate:"required"`
	Minutes  int    `json:"minutes" validate:"required"`
	Password string `json:"password"`
}

// RemoveOverridePayload revokes one override by id.
type RemoveOverridePayload struct {
	ID string `json:"id" validate:"required"`
}

// RecordBlockPayload bumps the block counters for an externally observed block.
type RecordBlockPayload struct {
	Kind  string `json:"kind" validate:"required"`
	Value string `json:"value" validate:"required"`
}

// SetPasswordPayload enables password protection.
type SetPasswordPayload struct {
	Password string `json:"password" validate:"required"`
}

// ChangePasswordPayload rotates the password.
type ChangePasswordPayload struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

// RemovePasswordPayload disables password protection.
type RemovePasswordPayload struct {
	CurrentPassword string `json:"currentPassword"`
}

// ResetPayload wipes all policy state; Confirmation must be the exact
// recovery phrase.
type ResetPayload struct {
	Confirmation string `json:"confirmation" validate:"required"`
}

// UpdateSettingsPayload replaces the settings snapshot wholesale.
type UpdateSettingsPayload struct {
	Settings domain.Settings `json:"settings"`
	Password string          `json:"password"`
}

// ListEntryPayload adds or removes one value (comma-separated values for
// adds) on a named list.
type ListEntryPayload struct {
	List     ListName `json:"list" validate:"required,oneof=blockedDomains blockedKeywords allowedSites"`
	Value    string   `json:"value" validate:"required"`
	Password string   `json:"password"`
}

// SetEnabledPayload flips the kill switch.
type SetEnabledPayload struct {
	Enabled bool `json:"enabled"`
}

// ExportPayload requests the full persisted record.
type ExportPayload struct {
	Password string `json:"password"`
}

// ImportPayload replaces the full persisted record.
type ImportPayload struct {
	Record   domain.Record `json:"record"`
	Password string        `json:"password"`
}

// ClassifyResult reports a navigation verdict.
type ClassifyResult struct {
	Verdict string `json:"verdict"`
	Reason  string `json:"reason,omitempty"`
}

// KeywordResult reports the outcome of a keyword scan.
type KeywordResult struct {
	Matched bool   `json:"matched"`
	Reason  string `json:"reason,omitempty"`
	Keyword string `json:"keyword,omitempty"`
}

// OverrideGrantResult identifies a freshly granted override.
type OverrideGrantResult struct {
	OverrideID string    `json:"overrideId"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// OKResult is the empty success result for operations with nothing to return.
type OKResult struct{}
