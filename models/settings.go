package models

import (
	"github.com/huandu/go-clone"
)

// LLMSettings holds per-chat model overrides. Nil/empty fields mean
// "use the application default".
type LLMSettings struct {
	ModelID      string   `json:"model_id,omitempty" yaml:"model_id,omitempty"`
	SystemPrompt *string  `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	NumCtx       *int     `json:"num_ctx,omitempty" yaml:"num_ctx,omitempty"`
	NumPredict   *int     `json:"num_predict,omitempty" yaml:"num_predict,omitempty"`
}

// IsZero reports whether no override is set.
func (l LLMSettings) IsZero() bool {
	return l.ModelID == "" && l.SystemPrompt == nil && l.Temperature == nil &&
		l.NumCtx == nil && l.NumPredict == nil
}

// ChatSettings is the fully resolved configuration of one chat.
type ChatSettings struct {
	MarkdownEnabled bool        `json:"markdown_enabled" yaml:"markdown_enabled"`
	RepliesAllowed  bool        `json:"replies_allowed" yaml:"replies_allowed"`
	LLM             LLMSettings `json:"llm" yaml:"llm"`
}

// DefaultChatSettings returns markdown on, replies allowed, no model overrides.
func DefaultChatSettings() ChatSettings {
	return ChatSettings{
		MarkdownEnabled: true,
		RepliesAllowed:  true,
	}
}

func (s ChatSettings) Clone() ChatSettings {
	return clone.Clone(s).(ChatSettings)
}

// SparseSettings is the persisted form of ChatSettings: only fields that
// differ from the defaults are present.
type SparseSettings struct {
	MarkdownEnabled *bool        `json:"markdown_enabled,omitempty" yaml:"markdown_enabled,omitempty"`
	RepliesAllowed  *bool        `json:"replies_allowed,omitempty" yaml:"replies_allowed,omitempty"`
	LLM             *LLMSettings `json:"llm,omitempty" yaml:"llm,omitempty"`
}

// IsEmpty reports whether the overlay carries no field at all.
func (s SparseSettings) IsEmpty() bool {
	return s.MarkdownEnabled == nil && s.RepliesAllowed == nil && (s.LLM == nil || s.LLM.IsZero())
}

// ToSparse keeps the fields of s that differ from DefaultChatSettings.
func (s ChatSettings) ToSparse() SparseSettings {
	defaults := DefaultChatSettings()
	var ret SparseSettings
	if s.MarkdownEnabled != defaults.MarkdownEnabled {
		v := s.MarkdownEnabled
		ret.MarkdownEnabled = &v
	}
	if s.RepliesAllowed != defaults.RepliesAllowed {
		v := s.RepliesAllowed
		ret.RepliesAllowed = &v
	}
	if !s.LLM.IsZero() {
		llm := clone.Clone(s.LLM).(LLMSettings)
		ret.LLM = &llm
	}
	return ret
}

// FromSparse overlays the present fields of s on top of defaults.
func (s SparseSettings) FromSparse(defaults ChatSettings) ChatSettings {
	ret := defaults.Clone()
	if s.MarkdownEnabled != nil {
		ret.MarkdownEnabled = *s.MarkdownEnabled
	}
	if s.RepliesAllowed != nil {
		ret.RepliesAllowed = *s.RepliesAllowed
	}
	if s.LLM != nil {
		llm := clone.Clone(*s.LLM).(LLMSettings)
		if llm.ModelID != "" {
			ret.LLM.ModelID = llm.ModelID
		}
		if llm.SystemPrompt != nil {
			ret.LLM.SystemPrompt = llm.SystemPrompt
		}
		if llm.Temperature != nil {
			ret.LLM.Temperature = llm.Temperature
		}
		if llm.NumCtx != nil {
			ret.LLM.NumCtx = llm.NumCtx
		}
		if llm.NumPredict != nil {
			ret.LLM.NumPredict = llm.NumPredict
		}
	}
	return ret
}
