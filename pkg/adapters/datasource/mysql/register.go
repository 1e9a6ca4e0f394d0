package mysql

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/config"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Engine:      config.EngineMySQL,
			DisplayName: "MySQL",
			Schemes:     []string{"mysql"},
		},
		Factory: func(rawURL string, opts datasource.Options, logger *zap.Logger) (datasource.Introspector, error) {
			return NewAdapter(rawURL, opts, logger)
		},
	})
}
