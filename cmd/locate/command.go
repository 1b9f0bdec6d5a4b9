package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flicky/spice-storefront/internal/location"
)

type commandKind int

const (
	cmdHelp commandKind = iota
	cmdDetect
	cmdFix
	cmdDenied
	cmdUnsupported
	cmdAccept
	cmdReject
	cmdManual
	cmdSaved
	cmdRecent
	cmdList
	cmdQuit
)

type command struct {
	kind   commandKind
	fix    location.Fix
	manual location.ManualAddress
	index  int
	text   string
}

const usage = `commands:
  detect                                   start GPS detection
  fix <lat> <lon> <accuracy>               report a device position
  denied | unsupported                     report a device failure
  accept | reject                          answer the detected address
  manual house|street|area|city|state|pincode[|landmark]
  saved <n>                                pick saved address n
  recent <text>                            pick a recent entry
  list                                     show saved and recent entries
  quit`

// parseCommand reads one terminal line.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(verb) {
	case "", "help", "?":
		return command{kind: cmdHelp}, nil
	case "detect":
		return command{kind: cmdDetect}, nil
	case "denied":
		return command{kind: cmdDenied}, nil
	case "unsupported":
		return command{kind: cmdUnsupported}, nil
	case "accept":
		return command{kind: cmdAccept}, nil
	case "reject":
		return command{kind: cmdReject}, nil
	case "list":
		return command{kind: cmdList}, nil
	case "quit", "exit":
		return command{kind: cmdQuit}, nil
	case "fix":
		return parseFix(rest)
	case "manual":
		return parseManual(rest)
	case "saved":
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return command{}, fmt.Errorf("saved: want a positive number, got %q", rest)
		}
		return command{kind: cmdSaved, index: n - 1}, nil
	case "recent":
		if rest == "" {
			return command{}, fmt.Errorf("recent: missing text")
		}
		return command{kind: cmdRecent, text: rest}, nil
	}
	return command{}, fmt.Errorf("unknown command %q", verb)
}

func parseFix(s string) (command, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return command{}, fmt.Errorf("fix: want <lat> <lon> <accuracy>")
	}
	var vals [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return command{}, fmt.Errorf("fix: %q is not a number", f)
		}
		vals[i] = v
	}
	if vals[0] < -90 || vals[0] > 90 || vals[1] < -180 || vals[1] > 180 || vals[2] < 0 {
		return command{}, fmt.Errorf("fix: coordinates out of range")
	}
	return command{kind: cmdFix, fix: location.Fix{Latitude: vals[0], Longitude: vals[1], Accuracy: vals[2]}}, nil
}

func parseManual(s string) (command, error) {
	parts := strings.Split(s, "|")
	if len(parts) < 6 || len(parts) > 7 {
		return command{}, fmt.Errorf("manual: want house|street|area|city|state|pincode[|landmark]")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	m := location.ManualAddress{
		HouseNumber: parts[0],
		Street:      parts[1],
		Area:        parts[2],
		City:        parts[3],
		State:       parts[4],
		Pincode:     parts[5],
	}
	if len(parts) == 7 {
		m.Landmark = parts[6]
	}
	return command{kind: cmdManual, manual: m}, nil
}
