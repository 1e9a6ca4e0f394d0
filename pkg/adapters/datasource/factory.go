package datasource

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/config"
)

// NewIntrospector routes rawURL to the adapter that registered its scheme
// and builds its Introspector. The pool is not opened until Connect.
//
// Unknown schemes, and known schemes whose adapter is not compiled in,
// return apperrors.ErrUnsupportedScheme.
func NewIntrospector(rawURL string, opts Options, logger *zap.Logger) (Introspector, error) {
	scheme, _, found := strings.Cut(rawURL, "://")
	if found {
		if reg, ok := lookupScheme(scheme); ok {
			return reg.Factory(rawURL, opts, logger)
		}
	}

	engine, err := config.EngineFromURL(rawURL)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w (%s adapter not compiled in)", apperrors.ErrUnsupportedScheme, engine)
}
