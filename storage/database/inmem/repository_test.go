package inmemdb

import (
	"testing"

	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/storage/database/repotest"
)

func TestRepository(t *testing.T) {
	repotest.Run(t, func(t *testing.T) payment.Repository {
		return NewRepository(Open())
	})
}
