package chatbot

import (
	"regexp"
)

// Command is a recognised chat request.
type Command int

const (
	CommandUnknown Command = iota
	CommandHi
	CommandHelp
	CommandStop
	CommandStart
	CommandReport
)

func (c Command) String() string {
	switch c {
	case CommandHi:
		return "hi"
	case CommandHelp:
		return "help"
	case CommandStop:
		return "stop"
	case CommandStart:
		return "start"
	case CommandReport:
		return "report"
	default:
		return "unknown"
	}
}

const (
	UnknownText  = "Sorry, I didn't understand that command"
	HelpText     = "I support the following commands:\n" +
		"*cancel|stop*: Cancels the current execution\n" +
		"*start|run*: Starts a new scan\n" +
		"*report*: Links the latest user expiration report\n" +
		"*help|?*: this help menu"
	StoppedText  = "Current run cancelled"
	StartedText  = "New scan started"
	NoReportText = "No user expiration report has been generated yet"
)

// Later rules win when a message matches more than one.
var rules = []struct {
	command Command
	pattern *regexp.Regexp
}{
	{CommandHi, regexp.MustCompile(`(?i)\bhi\b`)},
	{CommandHelp, regexp.MustCompile(`(?i)(?:\bhelp\b|\?)`)},
	{CommandStop, regexp.MustCompile(`(?i)\b(?:cancel|stop)\b`)},
	{CommandStart, regexp.MustCompile(`(?i)\b(?:start|run)\b`)},
	{CommandReport, regexp.MustCompile(`(?i)\breport\b`)},
}

// ParseCommand picks the command a message asks for.
func ParseCommand(text string) Command {
	cmd := CommandUnknown
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			cmd = r.command
		}
	}
	return cmd
}
