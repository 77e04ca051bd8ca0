package database

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/payment"
	gormrepos "github.com/trezcool/bursar/storage/database/gorm"
	inmemdb "github.com/trezcool/bursar/storage/database/inmem"
	sqlxrepos "github.com/trezcool/bursar/storage/database/sqlx"
)

// NewRepository opens the store selected by conf.Database.Engine, preparing it first (see Prepare);
// Postgres is also migrated. The returned func releases the store.
func NewRepository(conf *core.Config) (payment.Repository, func() error, error) {
	if err := Prepare(conf); err != nil {
		return nil, nil, errors.Wrapf(err, "preparing %s database", conf.Database.Engine)
	}

	switch conf.Database.Engine {
	case core.EngineMemory, "":
		return inmemdb.NewRepository(inmemdb.Open()), func() error { return nil }, nil

	case core.EngineSQLite:
		db, err := gormrepos.Open(conf.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, errors.Wrap(err, "opening sqlite database")
		}
		return gormrepos.NewRepository(db), sqlDB.Close, nil

	case core.EnginePostgres:
		db, err := Open(conf)
		if err != nil {
			return nil, nil, err
		}
		if err = Migrate(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return sqlxrepos.NewRepository(sqlx.NewDb(db, "postgres")), db.Close, nil
	}
	return nil, nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
}
