// Package command parses free-text user input into commands.
package command

import (
	"strings"

	"watchtower/alert"
	"watchtower/errors"
)

// Normalize collapses runs of spaces, lower-cases, and trims the input so
// "  ACK   7 " and "ack 7" parse identically.
func Normalize(input string) string {
	s := strings.TrimSpace(strings.ToLower(input))
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return s
}

// Parse parses one message into a command. The second return value is false
// when the input is not a command at all; such messages are silently ignored.
// Input that starts like an ack but does not follow the grammar returns an
// invalid-command error.
func Parse(input string) (alert.Command, bool, error) {
	normalized := Normalize(input)

	switch normalized {
	case "pending":
		return alert.Command{Kind: alert.CmdPending}, true, nil
	case "help":
		return alert.Command{Kind: alert.CmdHelp}, true, nil
	}

	tokens := strings.Split(normalized, " ")
	if tokens[0] != "ack" && tokens[0] != "acknowledge" {
		return alert.Command{}, false, nil
	}
	if len(tokens) != 2 {
		return alert.Command{}, false, errors.Errorf(errors.KindInvalidCommand,
			"command.Parse", "expected exactly one alert id, got %q", normalized)
	}
	id, err := alert.ParseID(tokens[1])
	if err != nil {
		return alert.Command{}, false, errors.E(errors.KindInvalidCommand, "command.Parse", err)
	}
	return alert.Command{Kind: alert.CmdAck, Alert: id}, true, nil
}
