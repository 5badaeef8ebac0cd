package chatlist

import "time"

type Kind int

const (
	Idle Kind = iota
	Loading
	Loaded
	Empty
	Failed
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Empty:
		return "empty"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Row is one display-ready conversation.
type Row struct {
	UserID      string
	Name        string
	LastMessage string
	Timestamp   time.Time
	TimeLabel   string
	Avatar      string
}

// State is the tagged state of the list.
//
//	Idle     nothing requested yet
//	Loading  a fetch is in flight; Rows still holds what is on screen
//	Loaded   Rows holds at least one conversation
//	Empty    the user has no conversations; show the explore call to action
//	Failed   Err holds the cause; Rows holds what was on screen before the failed fetch
type State struct {
	Kind Kind
	Rows []Row
	Err  error
}

func (s State) ShowsExplore() bool { return s.Kind == Empty }
