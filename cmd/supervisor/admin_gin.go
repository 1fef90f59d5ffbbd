//go:build gin_admin

package main

import (
	"github.com/rs/zerolog"

	"github.com/kestrelhq/persona-supervisor/hitl"
)

// startAdminServer launches hitl.AdminServer in the background when addr is
// non-empty. Only compiled in with the gin_admin build tag, matching
// hitl/api.go's own tag.
func startAdminServer(addr string, store hitl.ApprovalStore, log zerolog.Logger) {
	if addr == "" {
		return
	}
	server := hitl.NewAdminServer(store)
	go func() {
		if err := server.Run(addr); err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("admin server exited")
		}
	}()
	log.Info().Str("addr", addr).Msg("admin server listening")
}
