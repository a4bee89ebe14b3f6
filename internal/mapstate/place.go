// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package mapstate

import (
	"github.com/google/uuid"

	"github.com/wneessen/mapstate/internal/geobus"
)

// Place is a named location found by a nearby search. Places are immutable, the ID only
// identifies the place within this process.
type Place struct {
	id         uuid.UUID
	name       string
	address    string
	coordinate geobus.Coordinate
}

func newPlace(name, address string, coord geobus.Coordinate) Place {
	return Place{
		id:         uuid.New(),
		name:       name,
		address:    address,
		coordinate: coord,
	}
}

func (p Place) ID() uuid.UUID {
	return p.id
}

func (p Place) Name() string {
	return p.name
}

func (p Place) Address() string {
	return p.address
}

func (p Place) Coordinate() geobus.Coordinate {
	return p.coordinate
}
