// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowq

import (
	"io"
	"log/slog"

	"github.com/joeycumines/logiface"
	logifaceslog "github.com/joeycumines/logiface-slog"
)

// Logger is the lifecycle logger type accepted by [WithLogger]. It is the
// logiface facade (see github.com/joeycumines/logiface) wired to the slog
// adapter, so any [log/slog.Handler] — text, JSON, or a third-party one —
// can receive pipeline lifecycle events without this package committing to
// a concrete logging backend beyond the adapter itself.
type Logger = logiface.Logger[*logifaceslog.Event]

// defaultLogger discards everything: lifecycle logging is opt-in via
// WithLogger.
func defaultLogger() *Logger {
	return logiface.New[*logifaceslog.Event](
		logifaceslog.NewLogger(slog.NewTextHandler(io.Discard, nil), logifaceslog.WithLevel(logiface.LevelDisabled)),
	)
}

// NewLogger builds a pipeline [Logger] writing to handler at the given
// minimum level, suitable for passing to [WithLogger].
func NewLogger(handler slog.Handler, level logiface.Level) *Logger {
	return logiface.New[*logifaceslog.Event](logifaceslog.NewLogger(handler, logifaceslog.WithLevel(level)))
}

func (p *Pipeline[T]) logStageStart(stage int, workers int) {
	p.logger.Info().Int("stage", stage).Int("workers", workers).Log("stage started")
}

func (p *Pipeline[T]) logStageClosed(stage int) {
	p.logger.Debug().Int("stage", stage).Log("stage output closed")
}

func (p *Pipeline[T]) logWorkerError(stage int, err error) {
	p.logger.Err().Int("stage", stage).Err(err).Log("worker exited with error")
}
