//go:build !gin_admin

package main

import (
	"github.com/rs/zerolog"

	"github.com/kestrelhq/persona-supervisor/hitl"
)

// startAdminServer is a no-op in the default build (gin_admin not set); it
// warns once if the operator asked for -admin-addr anyway.
func startAdminServer(addr string, store hitl.ApprovalStore, log zerolog.Logger) {
	if addr == "" {
		return
	}
	log.Warn().Str("addr", addr).Msg("admin-addr set but binary was built without the gin_admin tag; ignoring")
}
