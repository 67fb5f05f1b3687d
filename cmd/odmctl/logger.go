package main

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/hydromelvictor/gogoose/odm"
)

var _ odm.Logger = zerologLogger{}

// zerologLogger adapts a zerolog.Logger to odm.Logger. Arguments are key-value pairs.
type zerologLogger struct {
	logger zerolog.Logger
}

func newLogger(w io.Writer, level string) zerologLogger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.WarnLevel
	}

	return zerologLogger{logger: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

func (l zerologLogger) Debug(msg string, args ...any) {
	l.logger.Debug().Fields(args).Msg(msg)
}

func (l zerologLogger) Info(msg string, args ...any) {
	l.logger.Info().Fields(args).Msg(msg)
}

func (l zerologLogger) Warn(msg string, args ...any) {
	l.logger.Warn().Fields(args).Msg(msg)
}

func (l zerologLogger) Error(msg string, args ...any) {
	l.logger.Error().Fields(args).Msg(msg)
}
