// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/wneessen/placetrack/internal/places"
)

const dateLayout = "2006-01-02"

// PlaceList renders places as aligned table, one place per line.
func (p *Presenter) PlaceList(list []places.Place) string {
	nameWidth, typeWidth := 0, 0
	for _, place := range list {
		nameWidth = max(nameWidth, runewidth.StringWidth(place.Name))
		typeWidth = max(typeWidth, runewidth.StringWidth(place.Type))
	}

	var builder strings.Builder
	for _, place := range list {
		builder.WriteString(runewidth.FillRight(place.Name, nameWidth))
		builder.WriteString("  ")
		builder.WriteString(runewidth.FillRight(place.Type, typeWidth))
		builder.WriteString("  ")
		builder.WriteString(place.Stars())
		builder.WriteString("  ")
		if !place.Added.IsZero() {
			builder.WriteString(place.Added.Format(dateLayout))
			builder.WriteString("  ")
		}
		builder.WriteString(place.Location)
		builder.WriteString("\n")
	}
	return builder.String()
}
