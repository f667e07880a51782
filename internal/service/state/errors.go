package state

import (
	"errors"
	"fmt"

	"github.com/splax/unhazzle/internal/repository"
)

var (
	ErrNoProject           = fmt.Errorf("%w: no project deployed yet", repository.ErrInvalidArgument)
	ErrNoActiveEnvironment = fmt.Errorf("%w: no active environment", repository.ErrInvalidArgument)
	ErrEnvironmentNotFound = fmt.Errorf("%w: environment", repository.ErrNotFound)
	ErrContainerNotFound   = fmt.Errorf("%w: container", repository.ErrNotFound)
	ErrEnvironmentDeleted  = fmt.Errorf("%w: environment is deleted", repository.ErrInvalidArgument)
	ErrClosed              = errors.New("state: store closed")
	errNameRequired        = fmt.Errorf("%w: name required", repository.ErrInvalidArgument)
	errSlugTaken           = fmt.Errorf("%w: slug already exists", repository.ErrInvalidArgument)
	errDuplicateContainer  = fmt.Errorf("%w: container name already used in environment", repository.ErrInvalidArgument)
	errDatabaseEngine      = fmt.Errorf("%w: database engine required", repository.ErrInvalidArgument)
	errCacheEngine         = fmt.Errorf("%w: cache engine required", repository.ErrInvalidArgument)
	errPromoteSelf         = fmt.Errorf("%w: source and target must differ", repository.ErrInvalidArgument)
	errNoChange            = errors.New("no change")
)

func invalid(err error) error {
	return fmt.Errorf("%w: %v", repository.ErrInvalidArgument, err)
}
