package aggregate

import "time"

// metadataTimeFormat is the timestamp layout used in rendered blocks.
const metadataTimeFormat = "2006-01-02 15:04:05"

// buildMetadata produces the provenance block for one unit, or nil when
// metadata is disabled. The timestamp is captured here, at render time,
// so long runs show realistic per-file times instead of one run-wide
// stamp.
func buildMetadata(unit FileUnit, now func() time.Time, include bool) *Metadata {
	if !include {
		return nil
	}
	return &Metadata{
		GeneratedAt: now(),
		Source:      unit.RelPath,
	}
}
