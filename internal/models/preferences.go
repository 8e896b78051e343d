package models

import (
	"fmt"
	"strconv"
	"time"
)

// Preference field names, as stored on the server and in the local file.
const (
	PrefSidebarCollapsed = "sidebar_collapsed"
	PrefTooltipsEnabled  = "tooltips_enabled"
	PrefTheme            = "theme"
	PrefDefaultView      = "default_view"
)

// PreferenceFields lists the editable preference fields in display order.
var PreferenceFields = []string{
	PrefSidebarCollapsed,
	PrefTooltipsEnabled,
	PrefTheme,
	PrefDefaultView,
}

// Preferences is the user preference document. The local copy shadows the
// server one; UpdatedAt decides which side wins a reconcile.
type Preferences struct {
	SidebarCollapsed bool      `json:"sidebar_collapsed"`
	TooltipsEnabled  bool      `json:"tooltips_enabled"`
	Theme            string    `json:"theme"`
	DefaultView      string    `json:"default_view"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DefaultPreferences returns the out-of-box preference values.
func DefaultPreferences() *Preferences {
	return &Preferences{
		SidebarCollapsed: false,
		TooltipsEnabled:  true,
		Theme:            "system",
		DefaultView:      "today",
	}
}

// Validate validates the preference values.
func (p *Preferences) Validate() error {
	switch p.Theme {
	case "light", "dark", "system":
	default:
		return &ValidationError{Field: PrefTheme, Reason: fmt.Sprintf("unknown theme %q", p.Theme)}
	}

	switch p.DefaultView {
	case "today", "inbox", "dashboard", "calendar":
	default:
		return &ValidationError{Field: PrefDefaultView, Reason: fmt.Sprintf("unknown view %q", p.DefaultView)}
	}

	return nil
}

// Set assigns a preference field from its string form.
func (p *Preferences) Set(field, value string) error {
	switch field {
	case PrefSidebarCollapsed, PrefTooltipsEnabled:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return &ValidationError{Field: field, Reason: "expected true or false"}
		}
		if field == PrefSidebarCollapsed {
			p.SidebarCollapsed = b
		} else {
			p.TooltipsEnabled = b
		}
	case PrefTheme:
		p.Theme = value
	case PrefDefaultView:
		p.DefaultView = value
	default:
		return &ValidationError{Field: field, Reason: "unknown preference"}
	}

	if err := p.Validate(); err != nil {
		return err
	}

	p.UpdatedAt = time.Now()
	return nil
}

// Get returns a preference field in its string form.
func (p *Preferences) Get(field string) (string, error) {
	switch field {
	case PrefSidebarCollapsed:
		return strconv.FormatBool(p.SidebarCollapsed), nil
	case PrefTooltipsEnabled:
		return strconv.FormatBool(p.TooltipsEnabled), nil
	case PrefTheme:
		return p.Theme, nil
	case PrefDefaultView:
		return p.DefaultView, nil
	default:
		return "", &ValidationError{Field: field, Reason: "unknown preference"}
	}
}

// Record converts the preferences to the wire form the preference endpoint
// accepts.
func (p *Preferences) Record() Record {
	return Record{
		PrefSidebarCollapsed: p.SidebarCollapsed,
		PrefTooltipsEnabled:  p.TooltipsEnabled,
		PrefTheme:            p.Theme,
		PrefDefaultView:      p.DefaultView,
		"updated_at":         p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// PreferencesFromRecord converts a wire record back to preferences. Missing
// fields take their defaults.
func PreferencesFromRecord(r Record) *Preferences {
	p := DefaultPreferences()
	if r == nil {
		return p
	}
	if v, ok := r[PrefSidebarCollapsed].(bool); ok {
		p.SidebarCollapsed = v
	}
	if v, ok := r[PrefTooltipsEnabled].(bool); ok {
		p.TooltipsEnabled = v
	}
	if s := r.StringField(PrefTheme); s != "" {
		p.Theme = s
	}
	if s := r.StringField(PrefDefaultView); s != "" {
		p.DefaultView = s
	}
	p.UpdatedAt = r.TimeField("updated_at")
	return p
}
