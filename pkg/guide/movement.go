package guide

import (
	"time"

	"walktale/pkg/geo"
	"walktale/pkg/model"
)

// movementState tracks the walker's progress between GPS fixes. All access
// happens under the controller mutex.
type movementState struct {
	hasFix  bool
	current model.Position

	lastSignificant   model.Position
	lastSignificantAt time.Time

	headingDeg     float64
	hasHeading     bool
	totalDistanceM float64
}

func point(p model.Position) geo.Point {
	return geo.Point{Lat: p.Lat, Lon: p.Lon}
}

// update applies a GPS fix. A fix with a reported accuracy worse than
// accuracyLimitM is rejected, but only once a good fix exists: with nothing
// to go on, a coarse fix beats no fix at all. It returns whether the fix was
// accepted and the distance moved since the previous accepted fix.
func (m *movementState) update(pos model.Position, now time.Time, accuracyLimitM, significantMoveM float64) (accepted bool, movedM float64) {
	if accuracyLimitM > 0 && pos.AccuracyM > accuracyLimitM && m.hasFix {
		return false, 0
	}

	if !m.hasFix {
		m.hasFix = true
		m.current = pos
		m.lastSignificant = pos
		m.lastSignificantAt = now
		if pos.HasHeading() {
			m.headingDeg = pos.Heading
			m.hasHeading = true
		}
		return true, 0
	}

	movedM = geo.Distance(point(m.current), point(pos))
	m.totalDistanceM += movedM
	m.current = pos

	sinceSignificant := geo.Distance(point(m.lastSignificant), point(pos))
	switch {
	case pos.HasHeading():
		m.headingDeg = pos.Heading
		m.hasHeading = true
	case sinceSignificant >= significantMoveM:
		// Derive heading from the travel direction once the walker has
		// covered enough ground for the bearing to be meaningful.
		m.headingDeg = geo.Bearing(point(m.lastSignificant), point(pos))
		m.hasHeading = true
	}

	if sinceSignificant >= significantMoveM {
		m.lastSignificant = pos
		m.lastSignificantAt = now
	}
	return true, movedM
}

// position returns the latest accepted fix, with the derived heading filled
// in when the fix itself carried none.
func (m *movementState) position() model.Position {
	pos := m.current
	if !pos.HasHeading() && m.hasHeading {
		pos.Heading = m.headingDeg
	}
	return pos
}
