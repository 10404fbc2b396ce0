// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"
	"time"

	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/spreak"
	"golang.org/x/text/language"

	"github.com/wneessen/placetrack/internal/config"
	"github.com/wneessen/placetrack/internal/geobus"
	"github.com/wneessen/placetrack/internal/geocode"
	"github.com/wneessen/placetrack/internal/places"
	"github.com/wneessen/placetrack/internal/routing"
	"github.com/wneessen/placetrack/internal/tracker"
)

const OutputClass = "placetrack"

const (
	ClassAddress = "address"
	ClassRoute   = "route"
	ClassPending = "pending"
	ClassError   = "error"
)

// State is a snapshot of everything the service knows about the tracking session.
type State struct {
	Mode         tracker.Mode
	Reference    geobus.Coordinate
	HasReference bool
	Address      string
	Place        places.Place
	Destination  tracker.PlaceMark
	Candidates   []routing.Candidate
	Err          error
	UpdatedAt    time.Time
}

// RouteView is the presentation of a single route candidate.
type RouteView struct {
	DistanceMeters  float64
	DurationSeconds float64
	Summary         string
	Points          int
}

type DestinationView struct {
	Name      string
	Subtype   string
	Location  string
	Rating    int
	Latitude  float64
	Longitude float64
}

type TemplateContext struct {
	Mode          string
	Directions    bool
	Icon          string
	IconWithSpace string

	Latitude     float64
	Longitude    float64
	HasFix       bool
	Address      string
	RegionMeters float64

	Destination  DestinationView
	Stars        string
	Route        *RouteView
	Alternatives int
	Arrival      time.Time
	Error        string
	UpdateTime   time.Time
}

// Output is the JSON line consumed by waybar.
type Output struct {
	Text    string   `json:"text"`
	Tooltip string   `json:"tooltip"`
	Class   []string `json:"class"`
}

type Presenter struct {
	units        string
	regionMeters float64
	localizer    *spreak.Localizer
	humanizer    *humanize.Humanizer
	textTpl      *template.Template
	tooltipTpl   *template.Template
}

func New(conf *config.Config, loc *spreak.Localizer) (*Presenter, error) {
	collection, err := humanize.New(humanize.WithLocale(de.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}
	lang := language.English
	if conf.Locale != "" {
		lang = language.Make(conf.Locale)
	}

	pres := &Presenter{
		units:        conf.Units,
		regionMeters: conf.Tracking.RegionMeters,
		localizer:    loc,
		humanizer:    collection.CreateHumanizer(lang),
	}
	pres.textTpl, err = template.New("text").Funcs(pres.templateFuncMap()).Parse(conf.Templates.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse text template: %w", err)
	}
	pres.tooltipTpl, err = template.New("tooltip").Funcs(pres.templateFuncMap()).Parse(conf.Templates.Tooltip)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tooltip template: %w", err)
	}
	return pres, nil
}

func (p *Presenter) BuildContext(state State) TemplateContext {
	ctx := TemplateContext{
		Mode:          state.Mode.String(),
		Directions:    state.Mode == tracker.ModeActiveDirections,
		Icon:          ModeIcons[state.Mode],
		IconWithSpace: EmojiWithSpace(ModeIcons[state.Mode]),
		Latitude:      state.Reference.Lat,
		Longitude:     state.Reference.Lon,
		HasFix:        state.HasReference,
		Address:       state.Address,
		RegionMeters:  p.regionMeters,
		Destination: DestinationView{
			Name:      state.Destination.Name,
			Subtype:   state.Destination.Subtype,
			Location:  state.Place.Location,
			Rating:    state.Place.Rating,
			Latitude:  state.Destination.Coordinate.Lat,
			Longitude: state.Destination.Coordinate.Lon,
		},
		Stars:      state.Place.Stars(),
		UpdateTime: state.UpdatedAt,
	}
	if len(state.Candidates) > 0 {
		best := state.Candidates[0]
		ctx.Route = &RouteView{
			DistanceMeters:  best.DistanceMeters,
			DurationSeconds: best.DurationSeconds,
			Summary:         best.Summary,
			Points:          len(best.Polyline),
		}
		ctx.Alternatives = len(state.Candidates) - 1
		ctx.Arrival = state.UpdatedAt.Add(time.Duration(best.DurationSeconds * float64(time.Second)))
	}
	if state.Err != nil {
		ctx.Error = p.errorMessage(state.Err)
	}
	return ctx
}

// Render executes the text and tooltip templates for the given context.
func (p *Presenter) Render(ctx TemplateContext) (Output, error) {
	textBuf := bytes.NewBuffer(nil)
	if err := p.textTpl.Execute(textBuf, ctx); err != nil {
		return Output{}, fmt.Errorf("failed to render text template: %w", err)
	}
	tooltipBuf := bytes.NewBuffer(nil)
	if err := p.tooltipTpl.Execute(tooltipBuf, ctx); err != nil {
		return Output{}, fmt.Errorf("failed to render tooltip template: %w", err)
	}

	return Output{
		Text:    textBuf.String(),
		Tooltip: tooltipBuf.String(),
		Class:   []string{OutputClass, stateClass(ctx)},
	}, nil
}

func stateClass(ctx TemplateContext) string {
	switch {
	case ctx.Error != "":
		return ClassError
	case !ctx.Directions:
		return ClassAddress
	case ctx.Route == nil:
		return ClassPending
	default:
		return ClassRoute
	}
}

func (p *Presenter) errorMessage(err error) string {
	switch {
	case errors.Is(err, tracker.ErrNoDestination):
		return p.localizer.Get(i18nVars["no destination"])
	case errors.Is(err, tracker.ErrNoFix):
		return p.localizer.Get(i18nVars["no position fix"])
	case errors.Is(err, routing.ErrNoRouteFound), errors.Is(err, geocode.ErrNotFound):
		return p.localizer.Get(i18nVars["no route found"])
	default:
		return p.localizer.Get(i18nVars["route unavailable"])
	}
}
