package model

// Origin records which search-path tier supplied an entry's content.
type Origin int

const (
	OriginNone    Origin = iota // not loaded from anywhere
	OriginPrimary               // writable user location
	OriginShared                // read-only system location
)

func (o Origin) String() string {
	switch o {
	case OriginPrimary:
		return "primary"
	case OriginShared:
		return "shared"
	default:
		return "none"
	}
}

// Provenance is the origin of an entry plus whether it was edited during the
// current session and still needs to be persisted.
type Provenance struct {
	Origin Origin
	Dirty  bool
}

func (p Provenance) String() string {
	if p.Dirty {
		return p.Origin.String() + "+dirty"
	}
	return p.Origin.String()
}

// TransponderRecord describes one radio relay channel of a satellite.
// Frequencies are in MHz.
type TransponderRecord struct {
	Name          string
	UplinkStart   float64
	UplinkEnd     float64
	DownlinkStart float64
	DownlinkEnd   float64
	DayOfWeek     uint8 // 0 when unscheduled
	PhaseStart    int
	PhaseEnd      int
}

// Defined reports whether the record carries an uplink or downlink.
func (t TransponderRecord) Defined() bool {
	return t.UplinkStart != 0 || t.DownlinkStart != 0
}

// SatDbEntry is the transponder metadata of a single satellite.
type SatDbEntry struct {
	// SatelliteNumber is the catalog number the entry was keyed by when
	// loaded. It is validated against the identity list at merge time.
	SatelliteNumber int64

	// Squint is set when the attitude below is known and a squint angle can
	// be computed.
	Squint      bool
	AttitudeLat float64
	AttitudeLon float64

	Transponders []TransponderRecord

	Provenance Provenance
}

// Normalize zeroes the attitude of entries with squint disabled so stale
// coordinates never cause spurious inequality.
func (e *SatDbEntry) Normalize() {
	if !e.Squint {
		e.AttitudeLat = 0
		e.AttitudeLon = 0
	}
}

// Empty reports whether the entry has neither squint attitude nor any defined
// transponder.
func (e SatDbEntry) Empty() bool {
	if e.Squint {
		return false
	}
	for _, t := range e.Transponders {
		if t.Defined() {
			return false
		}
	}
	return true
}

// Equal compares content only; SatelliteNumber and Provenance are ignored.
// Floating point values are compared exactly.
func (e SatDbEntry) Equal(other SatDbEntry) bool {
	if e.Squint != other.Squint {
		return false
	}
	if e.Squint && (e.AttitudeLat != other.AttitudeLat || e.AttitudeLon != other.AttitudeLon) {
		return false
	}
	if len(e.Transponders) != len(other.Transponders) {
		return false
	}
	for i := range e.Transponders {
		if e.Transponders[i] != other.Transponders[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the entry.
func (e SatDbEntry) Clone() SatDbEntry {
	out := e
	if e.Transponders != nil {
		out.Transponders = append([]TransponderRecord(nil), e.Transponders...)
	}
	return out
}
