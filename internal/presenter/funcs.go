// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/vorlif/humanize"

	"github.com/wneessen/mapstate/internal/geobus"
	"github.com/wneessen/mapstate/internal/mapstate"
)

const maxNameWidth = 24

func (p *Presenter) templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat":    p.timeFormat,
		"localizedTime": p.localizedTime,
		"since":         p.since,
		"floatFormat":   p.floatFormat,
		"coord":         p.coord,
		"results":       p.results,
		"loc":           p.loc,
		"lc":            strings.ToLower,
		"uc":            strings.ToUpper,
	}
}

func (p *Presenter) loc(val string) string {
	if raw, ok := i18nVars[strings.ToLower(val)]; ok {
		return p.localizer.Get(raw)
	}
	if raw, ok := i18nVars[val]; ok {
		return p.localizer.Get(raw)
	}
	return val
}

func (p *Presenter) localizedTime(val time.Time) string {
	return p.humanizer.FormatTime(val, humanize.TimeFormat)
}

// since returns the humanized age of val.
func (p *Presenter) since(val time.Time) string {
	if val.IsZero() {
		return p.loc("never")
	}
	return p.humanizer.NaturalTime(val)
}

func (p *Presenter) timeFormat(val time.Time, fmt string) string {
	return val.Format(fmt)
}

func (p *Presenter) floatFormat(val float64, precision int) string {
	pow := math.Pow(10, float64(precision))
	return fmt.Sprintf("%.*f", precision, math.Trunc(val*pow)/pow)
}

func (p *Presenter) coord(val *geobus.Coordinate) string {
	if val == nil {
		return p.loc("unknown")
	}
	return fmt.Sprintf("%s, %s", p.floatFormat(val.Lat, 4), p.floatFormat(val.Lon, 4))
}

// results lists places one per line with the names aligned in a column. Names are cut to
// maxNameWidth cells.
func (p *Presenter) results(places []mapstate.Place) string {
	width := 0
	for _, place := range places {
		width = max(width, min(runewidth.StringWidth(place.Name()), maxNameWidth))
	}
	lines := make([]string, len(places))
	for i, place := range places {
		name := runewidth.Truncate(place.Name(), maxNameWidth, "…")
		lines[i] = fmt.Sprintf("%2d. %s  %s", i+1, runewidth.FillRight(name, width), place.Address())
	}
	return strings.Join(lines, "\n")
}
