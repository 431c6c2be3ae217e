package server

import lfserrors "github.com/marmos91/lockfs/pkg/errors"

// FatalError is returned by Engine.Handle when a request cannot be answered
// and the server must stop.
type FatalError = lfserrors.FatalError

// Fatal error kinds.
const (
	KindResource     = lfserrors.KindResource
	KindInconsistent = lfserrors.KindInconsistent
)
