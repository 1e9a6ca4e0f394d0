package postgres

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/config"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Engine:      config.EnginePostgres,
			DisplayName: "PostgreSQL",
			Schemes:     []string{"postgres", "postgresql"},
		},
		Factory: func(rawURL string, opts datasource.Options, logger *zap.Logger) (datasource.Introspector, error) {
			return NewAdapter(rawURL, opts, logger)
		},
	})
}
