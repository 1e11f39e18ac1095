/*
Package log provides structured logging via zerolog: a global Logger
instance initialized once with Init, and child-logger constructors that
attach the fields callers repeatedly need.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	orgLog := log.WithOrganization(string(orgID))
	orgLog.Info().Str("quota_kind", "cpu").Msg("rehydrated from projection")

	entLog := log.WithEntity("sandbox", sandboxID)
	entLog.Warn().Err(err).Msg("delta application failed, event dropped")

WithComponent, WithOrganization, and WithEntity all derive from the same
global Logger and can be chained via .With() when a log line needs more
than one scope.
*/
package log
