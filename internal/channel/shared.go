package channel

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/edusync/examroom-client/internal/config"
)

var (
	sharedMu sync.Mutex
	shared   Channel
)

// Shared returns the process-wide channel, dialing it lazily on first
// use. Every view in the process reuses the same connection; each one
// filters inbound events by its own exam instead of assuming exclusive
// ownership of the link.
func Shared(cfg *config.Config, log zerolog.Logger) Channel {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		shared = Dial(cfg.WSURL, cfg.DialTimeout, cfg.ReconnectMaxBackoff, log)
	}
	return shared
}

// SetShared replaces the process-wide channel. Tests use it to install
// a fake; it must be called before any view mounts.
func SetShared(ch Channel) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	shared = ch
}
