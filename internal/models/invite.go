package models

import "time"

// CodeLength is the fixed length of an invite code.
const CodeLength = 5

// MaxPlusOneAllowance caps the plus-one ceiling per invite.
const MaxPlusOneAllowance = 99

// DefaultLanguage is used when an invite is created without a language.
const DefaultLanguage = "en"

// SupportedLanguages lists the two-letter language codes an invite may carry.
var SupportedLanguages = []string{"en", "it", "zh"}

// Invite represents a code-addressed invitation that owns a set of guests
type Invite struct {
	Code             string    `json:"code"`
	Deadline         time.Time `json:"deadline"`
	Locked           bool      `json:"locked"`
	Language         string    `json:"language"`
	PlusOneAllowance int       `json:"plus_one_allowance"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// InviteUpdate carries a partial invite update. Nil fields are left unchanged.
// The code is immutable and the locked flag moves only through Lock/Unlock.
type InviteUpdate struct {
	Deadline         *time.Time
	Language         *string
	PlusOneAllowance *int
	Notes            *string
}

// ListFilter selects a page of invites, optionally restricted to one language.
type ListFilter struct {
	Offset   int
	Limit    int
	Language string
}

// LanguageSupported reports whether lang is one of the supported two-letter codes.
func LanguageSupported(lang string) bool {
	for _, l := range SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}
