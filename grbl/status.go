package grbl

import (
	"slices"
	"strconv"
	"strings"
)

// State is the canonical machine state vocabulary of status reports.
type State string

const (
	StateIdle    State = "Idle"
	StateRun     State = "Run"
	StateHold    State = "Hold"
	StateJog     State = "Jog"
	StateCycle   State = "Cycle"
	StateDoor    State = "Door"
	StateAlarm   State = "Alarm"
	StateHome    State = "Home"
	StateSleep   State = "Sleep"
	StateUnknown State = ""
)

var knownStates = map[State]bool{
	StateIdle:  true,
	StateRun:   true,
	StateHold:  true,
	StateJog:   true,
	StateCycle: true,
	StateDoor:  true,
	StateAlarm: true,
	StateHome:  true,
	StateSleep: true,
}

// ParseState canonicalizes a raw state token. Tokens may carry a ":substate"
// suffix ("Hold:1", "Door:3") which does not affect the canonical state.
// Unrecognized tokens map to StateUnknown.
func ParseState(token string) State {
	name, _, _ := strings.Cut(token, ":")
	if s := State(name); knownStates[s] {
		return s
	}
	return StateUnknown
}

// FlagSet holds the single character flags of the Pn and A report fields;
// each character is an independent boolean.
type FlagSet map[rune]bool

func newFlagSet(value string) FlagSet {
	set := FlagSet{}
	for _, r := range value {
		set[r] = true
	}
	return set
}

func (s FlagSet) Has(flag rune) bool {
	return s[flag]
}

func (s FlagSet) String() string {
	flags := make([]rune, 0, len(s))
	for r := range s {
		flags = append(flags, r)
	}
	slices.Sort(flags)
	return string(flags)
}

// StatusReport is the decoded form of one bracketed real-time status line.
// Reports are ephemeral: each is superseded by the next poll. Any field
// other than the state token may be absent, in which case pointer fields
// are nil and sets are empty.
type StatusReport struct {
	// State is the canonical machine state, StateUnknown if the token is
	// not part of the known vocabulary.
	State State
	// StateToken is the raw leading token, including any substate suffix.
	StateToken string
	// MachinePosition is the MPos field.
	MachinePosition *Vec3
	// WorkPosition is the WPos field, or MachinePosition minus
	// WorkCoordinateOffset when the controller reports MPos and WCO only.
	WorkPosition *Vec3
	// WorkCoordinateOffset is the WCO field.
	WorkCoordinateOffset *Vec3
	// Feed is the feed component of the FS field.
	Feed *float64
	// PlannerFree and RxFree are the two components of the Bf field.
	PlannerFree *int
	RxFree      *int
	// Pins is the Pn field: input pins currently triggered.
	Pins FlagSet
	// Accessories is the A field: accessory outputs currently on.
	Accessories FlagSet
}

// IsStatusLine reports whether line looks like a status report: it begins
// with '<' and carries at least one field separator.
func IsStatusLine(line string) bool {
	return strings.HasPrefix(line, "<") && strings.Contains(line, "|")
}

// ParseStatus decodes one status report line; ok is false when line is not
// a status report at all. Decoding is total: a malformed field degrades to
// absent, unknown keys are ignored, nothing errors or panics. The engine
// calls this on every poll reply, so garbage from a half booted controller
// must never take the stream down.
func ParseStatus(line string) (report *StatusReport, ok bool) {
	if !IsStatusLine(line) {
		return nil, false
	}

	body := strings.TrimPrefix(line, "<")
	body = strings.TrimSuffix(body, ">")
	fields := strings.Split(body, "|")

	report = &StatusReport{
		StateToken:  fields[0],
		State:       ParseState(fields[0]),
		Pins:        FlagSet{},
		Accessories: FlagSet{},
	}

	for _, field := range fields[1:] {
		key, value, found := strings.Cut(field, ":")
		if !found {
			continue
		}
		switch key {
		case "MPos":
			report.MachinePosition = parseVec3(value)
		case "WPos":
			report.WorkPosition = parseVec3(value)
		case "WCO":
			report.WorkCoordinateOffset = parseVec3(value)
		case "Bf":
			report.PlannerFree, report.RxFree = parseBufferState(value)
		case "FS":
			report.Feed = parseFeed(value)
		case "Pn":
			report.Pins = newFlagSet(value)
		case "A":
			report.Accessories = newFlagSet(value)
		}
	}

	if report.WorkPosition == nil &&
		report.MachinePosition != nil && report.WorkCoordinateOffset != nil {
		wPos := report.MachinePosition.Sub(*report.WorkCoordinateOffset)
		report.WorkPosition = &wPos
	}

	return report, true
}

// parseBufferState decodes "planner_free,rx_free"; malformed yields absent
// for both, extra components are ignored.
func parseBufferState(value string) (*int, *int) {
	parts := strings.Split(value, ",")
	if len(parts) < 2 {
		return nil, nil
	}
	plannerFree, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, nil
	}
	rxFree, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, nil
	}
	return &plannerFree, &rxFree
}

// parseFeed decodes the feed component of "FS:feed,speed": the substring
// before the first comma.
func parseFeed(value string) *float64 {
	feedStr, _, _ := strings.Cut(value, ",")
	feed, err := strconv.ParseFloat(strings.TrimSpace(feedStr), 64)
	if err != nil {
		return nil
	}
	return &feed
}
