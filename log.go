package curlfuzz

import (
	"io"
	"os"
	"runtime"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
)

// LogTimeFormat is the timestamp layout of console logs.
const LogTimeFormat = "2006-01-02T15:04:05.000"

// NewLogger returns a console logger writing to out at info level, or debug level when debug is set.
func NewLogger(out io.Writer, debug bool) zerolog.Logger {
	if file, ok := out.(*os.File); ok && runtime.GOOS == "windows" {
		out = colorable.NewColorable(file)
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	writer := zerolog.ConsoleWriter{Out: out, TimeFormat: LogTimeFormat}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
