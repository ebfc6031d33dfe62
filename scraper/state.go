package scraper

// State is a step of the pagination state machine
type State int

const (
	FetchingPage State = iota
	Extracting
	DismissingModal
	CheckingNext
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case FetchingPage:
		return "FETCHING_PAGE"
	case Extracting:
		return "EXTRACTING"
	case DismissingModal:
		return "DISMISSING_MODAL"
	case CheckingNext:
		return "CHECKING_NEXT"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions happen from s
func (s State) Terminal() bool {
	return s == Done || s == Failed
}
