package model

// SatelliteIdentity ties a catalog number to a display name. The TLE database
// supplies these in a fixed order; the transponder database mirrors that
// order index for index.
type SatelliteIdentity struct {
	Number int64
	Name   string
}

// IndexOf returns the index of the first identity carrying number, or -1.
// Duplicate catalog numbers are allowed; only the earliest one is reported.
func IndexOf(identities []SatelliteIdentity, number int64) int {
	for i := range identities {
		if identities[i].Number == number {
			return i
		}
	}
	return -1
}
