package coherence

import "github.com/marmos91/pagesweep/internal/logger"

// LogHandlers returns handlers that only trace each call at debug level.
// Installing them makes hook traffic visible without a transport.
func LogHandlers() Handlers {
	return Handlers{
		Lock: func(scope, resource uint64, label string) {
			logger.Debug("coherence hook", logger.KeyHook, "lock", logger.KeyScope, scope, logger.InodeID(resource), logger.Filesystem(label))
		},
		Sync: func(resource uint64, label string) {
			logger.Debug("coherence hook", logger.KeyHook, "sync", logger.InodeID(resource), logger.Filesystem(label))
		},
		Invalidate: func(resource uint64, label string) {
			logger.Debug("coherence hook", logger.KeyHook, "invalidate", logger.InodeID(resource), logger.Filesystem(label))
		},
		Unlock: func(scope, resource uint64, label string) {
			logger.Debug("coherence hook", logger.KeyHook, "unlock", logger.KeyScope, scope, logger.InodeID(resource), logger.Filesystem(label))
		},
	}
}
