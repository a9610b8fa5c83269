package types

import "go/token"

// Severity is how bad an issue is.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	case SeverityInfo:
		return "INFO"
	default:
		return "UNKNOWN"
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Issue is a problem found in a directive or a pattern call.
type Issue struct {
	Rule     string
	Category string
	Filename string
	Message  string
	Note     string
	Severity Severity
	Start    token.Position
	End      token.Position
}
