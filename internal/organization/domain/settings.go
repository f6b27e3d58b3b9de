package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	SettingApprovalLevelsCount       = "approval_levels_count"
	SettingFinanceCanSeeAll          = "finance_can_see_all"
	SettingEmailNotificationsEnabled = "email_notifications_enabled"

	DefaultApprovalLevelsCount       = 2
	DefaultFinanceCanSeeAll          = false
	DefaultEmailNotificationsEnabled = true
)

// Settings is the per-organization configuration map. Unknown keys are kept
// as-is; recognized keys are read through the accessors below, which fall
// back to defaults when a value is missing or malformed.
type Settings map[string]any

func (s Settings) ApprovalLevelsCount() int {
	if v, ok := asInt(s[SettingApprovalLevelsCount]); ok && v >= 1 {
		return v
	}
	return DefaultApprovalLevelsCount
}

func (s Settings) FinanceCanSeeAll() bool {
	if v, ok := asBool(s[SettingFinanceCanSeeAll]); ok {
		return v
	}
	return DefaultFinanceCanSeeAll
}

func (s Settings) EmailNotificationsEnabled() bool {
	if v, ok := asBool(s[SettingEmailNotificationsEnabled]); ok {
		return v
	}
	return DefaultEmailNotificationsEnabled
}

// Merge returns a copy of s with patch applied on top.
func (s Settings) Merge(patch map[string]any) Settings {
	out := make(Settings, len(s)+len(patch))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// ValidatePatch checks the recognized keys of a settings update.
func ValidatePatch(patch map[string]any) error {
	for key, value := range patch {
		switch key {
		case SettingApprovalLevelsCount:
			v, ok := asInt(value)
			if !ok || v < 1 {
				return ErrInvalidApprovalLevels
			}
		case SettingFinanceCanSeeAll, SettingEmailNotificationsEnabled:
			if _, ok := asBool(value); !ok {
				return ErrInvalidSetting
			}
		}
	}
	return nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return parsed, err == nil
	default:
		return false, false
	}
}
