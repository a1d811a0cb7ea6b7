package ingest

import "fmt"

// Band is the radio band classification of a race.
type Band string

const (
	BandM2       Band = "M2"
	BandM80      Band = "M80"
	BandCombined Band = "COMBINED"
)

// remoteBands maps the remote enumeration by position; the order is
// part of the wire contract.
var remoteBands = []Band{BandM2, BandM80, BandCombined}

// MalformedDataError reports a remote payload the import cannot map.
// The whole import aborts; nothing defaults silently.
type MalformedDataError struct {
	Field string
	Value string
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("malformed remote data: %s = %q", e.Field, e.Value)
}

// ParseBand resolves the remote band string to the local constant.
func ParseBand(remote string) (Band, error) {
	for i, name := range []string{"M2", "M80", "COMBINED"} {
		if remote == name {
			return remoteBands[i], nil
		}
	}
	return "", &MalformedDataError{Field: "race_band", Value: remote}
}
