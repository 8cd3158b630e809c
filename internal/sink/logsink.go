package sink

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vantablack-labs/arbengine"
)

// LogSink writes every event as a structured zerolog line, the Go
// analogue of every bot's logger.info/logger.warning calls scattered
// through scan_and_execute/execute_arbitrage/sniper_scan.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink builds a LogSink over the global zerolog logger.
func NewLogSink() *LogSink {
	return &LogSink{logger: log.Logger}
}

// Record logs evt at a level chosen by its kind: errors loud, spreads
// quiet (debug), execution and state-change at info.
func (s *LogSink) Record(evt arbengine.Event) {
	entry := s.logger.Info()
	switch evt.Kind {
	case arbengine.EventError:
		entry = s.logger.Warn()
	case arbengine.EventSpread:
		entry = s.logger.Debug()
	}

	entry.
		Str("kind", string(evt.Kind)).
		Uint64("height", evt.Height).
		Str("fingerprint", evt.Fingerprint).
		Float64("gross_usd", evt.GrossUSD).
		Float64("net_usd", evt.NetUSD).
		Str("tx_hash", evt.TxHash.Hex()).
		Msg(evt.Message)
}
