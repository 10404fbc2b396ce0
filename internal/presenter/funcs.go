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
	"github.com/vorlif/spreak/localize"

	"github.com/wneessen/placetrack/internal/tracker"
)

const metersPerMile = 1609.344

// ModeIcons maps the tracking modes to the icon shown in front of the text.
var ModeIcons = map[tracker.Mode]string{
	tracker.ModePassiveAddress:   "📍",
	tracker.ModeActiveDirections: "🚶",
}

var i18nVars = map[string]localize.MsgID{
	"destination":       "Destination",
	"current address":   "Current address",
	"distance":          "Distance",
	"travel time":       "Travel time",
	"arrival":           "Arrival",
	"alternatives":      "Alternatives",
	"error":             "Error",
	"rating":            "Rating",
	"searching route":   "Searching route…",
	"unknown address":   "Unknown address",
	"no destination":    "No destination",
	"no position fix":   "No position fix",
	"no route found":    "No route found",
	"route unavailable": "Route unavailable",
	"passive":           "Address tracking",
	"directions":        "Directions",
}

func (p *Presenter) templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat":    p.timeFormat,
		"localizedTime": p.localizedTime,
		"naturalTime":   p.naturalTime,
		"floatFormat":   p.floatFormat,
		"km":            p.km,
		"distance":      p.distance,
		"minutes":       p.minutes,
		"loc":           p.loc,
		"pad":           EmojiWithSpace,
		"lc":            strings.ToLower,
		"uc":            strings.ToUpper,
	}
}

func (p *Presenter) loc(val string) string {
	val = strings.ToLower(val)
	if raw, ok := i18nVars[val]; ok {
		return p.localizer.Get(raw)
	}
	return val
}

func (p *Presenter) localizedTime(val time.Time) string {
	return p.humanizer.FormatTime(val, humanize.TimeFormat)
}

func (p *Presenter) naturalTime(val time.Time) string {
	return p.humanizer.NaturalTime(val)
}

func (p *Presenter) timeFormat(val time.Time, fmt string) string {
	return val.Format(fmt)
}

func (p *Presenter) floatFormat(val float64, precision int) string {
	pow := math.Pow(10, float64(precision))
	return fmt.Sprintf("%.*f", precision, math.Trunc(val*pow)/pow)
}

// km formats a distance in meters as kilometers with one decimal.
func (p *Presenter) km(meters float64) string {
	return fmt.Sprintf("%.1f km", meters/1000)
}

// distance formats a distance in meters in the configured unit system.
func (p *Presenter) distance(meters float64) string {
	if p.units == "imperial" {
		return fmt.Sprintf("%.1f mi", meters/metersPerMile)
	}
	return p.km(meters)
}

// minutes formats a duration in seconds as whole minutes.
func (p *Presenter) minutes(seconds float64) string {
	mins := int(seconds / 60)
	return p.localizer.NGetf("%d minute", "%d minutes", mins, mins)
}

// EmojiWithSpace pads an emoji with spaces according to its display width.
func EmojiWithSpace(emoji string) string {
	if emoji == "" {
		return ""
	}
	width := runewidth.StringWidth(emoji)
	return fmt.Sprintf("%s%s", emoji, strings.Repeat(" ", width+1))
}
