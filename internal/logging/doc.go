// Package logging configures slog for vidcap.
//
// Every module asks for its own logger once:
//
//	logger := logging.GetLogger("v4l2")
//	logger.Info("Stream on", "source", path, "buffers", n)
//
// A logger's level is the module override from [Config.Modules] when one
// is set and [Config.Level] otherwise. Levels live in slog.LevelVar values
// shared by every handler of a module, so [SetLevel], [SetModuleLevel] and
// [ApplyLevels] act on loggers already handed out. The extra level "none"
// silences a module.
//
// Records go to stdout (text or JSON) when stdout is a terminal, pipe or
// file, and to journald when it is reachable:
//
//	journalctl -t vidcap MODULE=capture
//
// The newest records are also kept in memory for the API; see [GetBuffer]
// and [SetLogCallback].
package logging
