// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/spreak"
	"github.com/vorlif/spreak/localize"
	"golang.org/x/text/language"

	"github.com/wneessen/mapstate/internal/mapstate"
)

// CSS classes of the rendered output.
const (
	ClassLocating  = "locating"
	ClassLocated   = "located"
	ClassDenied    = "denied"
	ClassSearching = "searching"
)

// Output is a single line of waybar module output.
type Output struct {
	Text    string `json:"text"`
	Tooltip string `json:"tooltip"`
	Class   string `json:"class"`
}

// Presenter renders map states with the configured templates.
type Presenter struct {
	text      *template.Template
	tooltip   *template.Template
	localizer *spreak.Localizer
	humanizer *humanize.Humanizer
}

var i18nVars = map[string]localize.MsgID{
	"location":               "Location",
	"permission":             "Permission",
	"updated":                "Updated",
	"search":                 "Search",
	"selected":               "Selected",
	"searching":              "Searching...",
	"search failed":          "Search failed",
	"unknown":                "Unknown",
	"never":                  "Never",
	"not determined":         "Not determined",
	"denied":                 "Denied",
	"restricted":             "Restricted",
	"authorized when in use": "When in use",
	"authorized always":      "Always",
	mapstate.AddressPending:     "Fetching address...",
	mapstate.AddressUnavailable: "Address unavailable",
}

func New(textTpl, tooltipTpl string, loc *spreak.Localizer, lang language.Tag) (*Presenter, error) {
	collection, err := humanize.New(humanize.WithLocale(de.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}
	p := &Presenter{
		localizer: loc,
		humanizer: collection.CreateHumanizer(lang),
	}

	p.text, err = template.New("text").Funcs(p.templateFuncMap()).Parse(textTpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse text template: %w", err)
	}
	p.tooltip, err = template.New("tooltip").Funcs(p.templateFuncMap()).Parse(tooltipTpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tooltip template: %w", err)
	}

	return p, nil
}

// Render executes both templates with state.
func (p *Presenter) Render(state mapstate.MapViewState) (Output, error) {
	text := bytes.NewBuffer(nil)
	if err := p.text.Execute(text, state); err != nil {
		return Output{}, fmt.Errorf("failed to render text template: %w", err)
	}
	tooltip := bytes.NewBuffer(nil)
	if err := p.tooltip.Execute(tooltip, state); err != nil {
		return Output{}, fmt.Errorf("failed to render tooltip template: %w", err)
	}

	return Output{
		Text:    text.String(),
		Tooltip: tooltip.String(),
		Class:   Class(state),
	}, nil
}

// Class returns the CSS class for state.
func Class(state mapstate.MapViewState) string {
	switch {
	case state.Location.AuthorizationStatus.Refused():
		return ClassDenied
	case state.Search.State != mapstate.SearchIdle:
		return ClassSearching
	case state.Location.CurrentLocation != nil:
		return ClassLocated
	default:
		return ClassLocating
	}
}
