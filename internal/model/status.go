package model

// ProcessingStatus is the lifecycle state of a confirmation document. It is
// the single source of truth for which operations are currently legal.
type ProcessingStatus string

const (
	StatusNotProcessed     ProcessingStatus = "Not_Processed"
	StatusTextExtracted    ProcessingStatus = "TEXT_EXTRACTED"
	StatusTextParsed       ProcessingStatus = "TEXT_PARSED"
	StatusUnitsCreated     ProcessingStatus = "UNITS_CREATED"
	StatusPartiallyMatched ProcessingStatus = "PARTIALLY_MATCHED"
	StatusFullyMatched     ProcessingStatus = "FULLY_MATCHED"
	StatusError            ProcessingStatus = "ERROR"
)

// AllStatuses lists every status in forward processing order, with the
// absorbing ERROR state last.
var AllStatuses = []ProcessingStatus{
	StatusNotProcessed,
	StatusTextExtracted,
	StatusTextParsed,
	StatusUnitsCreated,
	StatusPartiallyMatched,
	StatusFullyMatched,
	StatusError,
}

// Valid reports whether s is a known status value.
func (s ProcessingStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further processing transition is legal from s.
// The matched states belong to the downstream reconciliation process; ERROR
// is absorbing.
func (s ProcessingStatus) Terminal() bool {
	switch s {
	case StatusPartiallyMatched, StatusFullyMatched, StatusError:
		return true
	}
	return false
}

func (s ProcessingStatus) String() string {
	return string(s)
}
