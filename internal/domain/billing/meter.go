package billing

import "fmt"

// Meter represents a countable usage dimension
type Meter string

const (
	// MeterQuery tracks AI queries answered
	MeterQuery Meter = "QUERY"

	// MeterDocument tracks document uploads processed
	MeterDocument Meter = "DOCUMENT"

	// MeterPhoto tracks photo analyses performed
	MeterPhoto Meter = "PHOTO"

	// MeterStorageDelta tracks storage consumption changes in bytes.
	// Quantity may be negative for deletions.
	MeterStorageDelta Meter = "STORAGE_DELTA"
)

// String returns the string representation of Meter
func (m Meter) String() string {
	return string(m)
}

// IsValid returns true if the meter is valid
func (m Meter) IsValid() bool {
	switch m {
	case MeterQuery, MeterDocument, MeterPhoto, MeterStorageDelta:
		return true
	}
	return false
}

// AllowsNegativeQuantity returns true for meters whose events may carry a
// negative quantity. Only storage deltas shrink.
func (m Meter) AllowsNegativeQuantity() bool {
	return m == MeterStorageDelta
}

// Unit returns the measurement unit for this meter
func (m Meter) Unit() MeterUnit {
	if m == MeterStorageDelta {
		return MeterUnitBytes
	}
	return MeterUnitCount
}

// DisplayName returns a human-readable name for the meter
func (m Meter) DisplayName() string {
	switch m {
	case MeterQuery:
		return "AI Queries"
	case MeterDocument:
		return "Document Uploads"
	case MeterPhoto:
		return "Photo Analyses"
	case MeterStorageDelta:
		return "Storage"
	default:
		return string(m)
	}
}

// AllMeters returns all valid meters
func AllMeters() []Meter {
	return []Meter{
		MeterQuery,
		MeterDocument,
		MeterPhoto,
		MeterStorageDelta,
	}
}

// ParseMeter parses a string into a Meter
func ParseMeter(s string) (Meter, error) {
	m := Meter(s)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid meter: %s", s)
	}
	return m, nil
}

// MeterUnit represents the unit of measurement for a meter
type MeterUnit string

const (
	// MeterUnitCount represents a simple event count
	MeterUnitCount MeterUnit = "count"

	// MeterUnitBytes represents storage in bytes
	MeterUnitBytes MeterUnit = "bytes"
)

// String returns the string representation of MeterUnit
func (u MeterUnit) String() string {
	return string(u)
}

// FormatValue formats a value with the appropriate unit suffix
func (u MeterUnit) FormatValue(value int64) string {
	if u == MeterUnitBytes {
		return formatBytes(value)
	}
	return fmt.Sprintf("%d", value)
}

// formatBytes formats bytes into human-readable format
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	neg := ""
	if bytes < 0 {
		neg = "-"
		bytes = -bytes
	}

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%s%.2f TB", neg, float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%s%.2f GB", neg, float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%s%.2f MB", neg, float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%s%.2f KB", neg, float64(bytes)/KB)
	default:
		return fmt.Sprintf("%s%d B", neg, bytes)
	}
}
