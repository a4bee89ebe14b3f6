// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package mapstate

// AuthorizationStatus is the permission state of the device location.
type AuthorizationStatus int

const (
	NotDetermined AuthorizationStatus = iota
	Denied
	Restricted
	AuthorizedWhenInUse
	AuthorizedAlways
)

// Authorized reports whether location updates may be started.
func (s AuthorizationStatus) Authorized() bool {
	return s == AuthorizedWhenInUse || s == AuthorizedAlways
}

// Refused reports whether the user or the system refused access. Refusal is terminal, only the
// user can revert it outside the application.
func (s AuthorizationStatus) Refused() bool {
	return s == Denied || s == Restricted
}

func (s AuthorizationStatus) String() string {
	switch s {
	case NotDetermined:
		return "not determined"
	case Denied:
		return "denied"
	case Restricted:
		return "restricted"
	case AuthorizedWhenInUse:
		return "authorized when in use"
	case AuthorizedAlways:
		return "authorized always"
	default:
		return "unknown"
	}
}
