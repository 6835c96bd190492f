// Package policy loads the registry mapping (document type, section id) to
// processing policy. Every dispatch value is a closed enum validated at
// unmarshal time, so a typo in config is a load-time error instead of a
// silently skipped branch.
package policy

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Mode selects how the workflow engine treats a section.
type Mode string

const (
	ModeAuto           Mode = "auto"            // draft from context when possible
	ModeQuestionsFirst Mode = "questions_first" // always gather answers before drafting
	ModeManual         Mode = "manual"          // never edited by automation
)

// OutputFormat constrains what shape of prose the collaborator is asked for.
type OutputFormat string

const (
	FormatProse   OutputFormat = "prose"
	FormatBullets OutputFormat = "bullets"
	FormatTable   OutputFormat = "table"
)

// AutoApply gates whether review patches may be merged without a human.
type AutoApply string

const (
	ApplyNever      AutoApply = "never"
	ApplyAlways     AutoApply = "always"
	ApplyIfAllValid AutoApply = "if_validation_passes"
)

// ContentFilter is a named, data-driven sanitizer rule attached to a
// section's policy rather than a code branch keyed on section identity.
type ContentFilter string

const (
	FilterDedupeBullets ContentFilter = "dedupe_bullets"
	FilterBulletsOnly   ContentFilter = "bullets_only"
)

// ScopeKind discriminates review gate scopes.
type ScopeKind string

const (
	ScopeCurrentSection ScopeKind = "current_section"
	ScopeAllPrior       ScopeKind = "all_prior_sections"
	ScopeEntireDocument ScopeKind = "entire_document"
	ScopeExplicit       ScopeKind = "sections"
)

// ScopeSpec is a parsed scope policy. Explicit scopes carry their literal
// section list.
type ScopeSpec struct {
	Kind     ScopeKind
	Sections []string
}

// ParseScope parses the textual scope forms: current_section,
// all_prior_sections, entire_document, sections:a,b,c.
func ParseScope(s string) (ScopeSpec, error) {
	s = strings.TrimSpace(s)
	switch ScopeKind(s) {
	case ScopeCurrentSection, ScopeAllPrior, ScopeEntireDocument:
		return ScopeSpec{Kind: ScopeKind(s)}, nil
	}
	if rest, ok := strings.CutPrefix(s, "sections:"); ok {
		var ids []string
		for _, part := range strings.Split(rest, ",") {
			if part = strings.TrimSpace(part); part != "" {
				ids = append(ids, part)
			}
		}
		if len(ids) == 0 {
			return ScopeSpec{}, &ConfigurationError{Msg: "explicit scope lists no sections"}
		}
		return ScopeSpec{Kind: ScopeExplicit, Sections: ids}, nil
	}
	return ScopeSpec{}, &ConfigurationError{Msg: fmt.Sprintf("unknown review scope %q", s)}
}

func (s *ScopeSpec) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseScope(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ConfigurationError means no applicable policy exists for a lookup.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Msg
}

// SectionPolicy is the processing policy for one section (or the document
// type's default).
type SectionPolicy struct {
	Mode             Mode            `yaml:"mode"`
	OutputFormat     OutputFormat    `yaml:"output_format"`
	PreservedHeaders []string        `yaml:"preserved_headers"`
	LLMProfile       string          `yaml:"llm_profile"`
	Scope            ScopeSpec       `yaml:"scope"`
	AutoApplyPatches AutoApply       `yaml:"auto_apply_patches"`
	ContentFilters   []ContentFilter `yaml:"content_filters"`
	ReviewRules      string          `yaml:"review_rules"`
}

// DocTypePolicy groups per-section policies under one document type.
type DocTypePolicy struct {
	Sections map[string]SectionPolicy `yaml:"sections"`
	Default  *SectionPolicy           `yaml:"default"`
}

// Config is the full loaded registry plus provider settings.
type Config struct {
	DocumentTypes map[string]DocTypePolicy `yaml:"document_types"`
	AI            struct {
		Provider string `yaml:"provider"` // gemini | openai
		Model    string `yaml:"model"`
		APIKey   string `yaml:"api_key"`
		BaseURL  string `yaml:"base_url"`
	} `yaml:"ai"`
	Journal struct {
		Path string `yaml:"path"`
	} `yaml:"journal"`
	Git struct {
		Commit bool `yaml:"commit"`
	} `yaml:"git"`
}

// Load reads config.yaml-style configuration, with .env and environment
// overrides applied afterwards.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if key := os.Getenv("SPECLOOM_API_KEY"); key != "" {
		cfg.AI.APIKey = key
	}
	if provider := os.Getenv("SPECLOOM_AI_PROVIDER"); provider != "" {
		cfg.AI.Provider = provider
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	for docType, dt := range c.DocumentTypes {
		if dt.Default != nil {
			if err := dt.Default.validate(docType, "default"); err != nil {
				return err
			}
		}
		for id, sp := range dt.Sections {
			if err := sp.validate(docType, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *SectionPolicy) validate(docType, section string) error {
	where := fmt.Sprintf("%s/%s", docType, section)
	switch p.Mode {
	case "", ModeAuto, ModeQuestionsFirst, ModeManual:
	default:
		return &ConfigurationError{Msg: fmt.Sprintf("%s: unknown mode %q", where, p.Mode)}
	}
	switch p.OutputFormat {
	case "", FormatProse, FormatBullets, FormatTable:
	default:
		return &ConfigurationError{Msg: fmt.Sprintf("%s: unknown output_format %q", where, p.OutputFormat)}
	}
	switch p.AutoApplyPatches {
	case "", ApplyNever, ApplyAlways, ApplyIfAllValid:
	default:
		return &ConfigurationError{Msg: fmt.Sprintf("%s: unknown auto_apply_patches %q", where, p.AutoApplyPatches)}
	}
	for _, f := range p.ContentFilters {
		switch f {
		case FilterDedupeBullets, FilterBulletsOnly:
		default:
			return &ConfigurationError{Msg: fmt.Sprintf("%s: unknown content filter %q", where, f)}
		}
	}
	return nil
}

// ForSection resolves the policy for one section of one document type,
// falling back to the type's default. A missing document type, or a section
// with neither policy nor default, is a ConfigurationError.
func (c *Config) ForSection(docType, sectionID string) (SectionPolicy, error) {
	dt, ok := c.DocumentTypes[docType]
	if !ok {
		return SectionPolicy{}, &ConfigurationError{Msg: fmt.Sprintf("unknown document type %q", docType)}
	}
	if sp, ok := dt.Sections[sectionID]; ok {
		return withDefaults(sp), nil
	}
	if dt.Default != nil {
		return withDefaults(*dt.Default), nil
	}
	return SectionPolicy{}, &ConfigurationError{
		Msg: fmt.Sprintf("no policy for section %q in document type %q and no default", sectionID, docType),
	}
}

func withDefaults(p SectionPolicy) SectionPolicy {
	if p.Mode == "" {
		p.Mode = ModeAuto
	}
	if p.OutputFormat == "" {
		p.OutputFormat = FormatProse
	}
	if p.AutoApplyPatches == "" {
		p.AutoApplyPatches = ApplyNever
	}
	if p.Scope.Kind == "" {
		p.Scope.Kind = ScopeAllPrior
	}
	return p
}
