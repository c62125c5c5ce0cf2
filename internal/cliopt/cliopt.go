// Package cliopt translates command-line flags into the engine's option and
// logging types, the way the original implementation's CLI layer turns
// parsed arguments into a transfer's options and a log level before handing
// off to the protocol engine.
package cliopt

import (
	"github.com/sirupsen/logrus"

	tftp "github.com/jonasjelonek/tftp"
)

// DebugLevel mirrors the original CLI's verbosity enum: a small, ordered set
// of named levels instead of exposing logrus.Level directly on the flag
// surface.
type DebugLevel int

const (
	DebugOff DebugLevel = iota
	DebugError
	DebugWarn
	DebugInfo
	DebugDebug
	DebugTrace
)

// String names match the flag values accepted by --debug.
func (d DebugLevel) String() string {
	switch d {
	case DebugOff:
		return "off"
	case DebugError:
		return "error"
	case DebugWarn:
		return "warn"
	case DebugInfo:
		return "info"
	case DebugDebug:
		return "debug"
	case DebugTrace:
		return "trace"
	default:
		return "warn"
	}
}

// ParseDebugLevel parses a --debug flag value, defaulting to DebugWarn for
// anything unrecognized so a typo never silences legitimate warnings.
func ParseDebugLevel(s string) DebugLevel {
	switch s {
	case "off":
		return DebugOff
	case "error":
		return DebugError
	case "warn", "":
		return DebugWarn
	case "info":
		return DebugInfo
	case "debug":
		return DebugDebug
	case "trace":
		return DebugTrace
	default:
		return DebugWarn
	}
}

// LogrusLevel maps a DebugLevel to the logrus.Level the engine's Logger
// collaborator is configured with. DebugOff maps to logrus.PanicLevel, the
// quietest level logrus offers short of a literal no-op writer.
func (d DebugLevel) LogrusLevel() logrus.Level {
	switch d {
	case DebugOff:
		return logrus.PanicLevel
	case DebugError:
		return logrus.ErrorLevel
	case DebugWarn:
		return logrus.WarnLevel
	case DebugInfo:
		return logrus.InfoLevel
	case DebugDebug:
		return logrus.DebugLevel
	case DebugTrace:
		return logrus.TraceLevel
	default:
		return logrus.WarnLevel
	}
}

// ClientOptions is the parsed form of a client subcommand's option flags.
type ClientOptions struct {
	Blocksize    uint16
	TimeoutSecs  uint8
	TransferSize bool
}

// ToTFTPOptions converts the parsed flags into the engine's public Options
// type, the client-side analog of the original CLI's parse_tftp_options.
func (c ClientOptions) ToTFTPOptions() tftp.Options {
	return tftp.Options{
		Blocksize:           c.Blocksize,
		Timeout:             c.TimeoutSecs,
		RequestTransferSize: c.TransferSize,
	}
}
