package consultation

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm/logger"
)

// GormStoreSuite runs the store contract against PostgreSQL.
// Set DATABASE_DSN to a disposable database to enable it.
type GormStoreSuite struct {
	storeContract
	dsn string
}

func (s *GormStoreSuite) SetupTest() {
	s.clock = &testClock{now: time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)}
	store, err := OpenPostgres(GormConfig{DSN: s.dsn, MaxConns: 4, LogLevel: logger.Silent},
		WithClock(s.clock.Now), WithTTL(24*time.Hour))
	s.Require().NoError(err)
	s.Require().NoError(store.db.Exec("DELETE FROM consultations").Error)
	s.store = store
}

func (s *GormStoreSuite) TearDownTest() {
	s.NoError(s.store.Close())
}

func TestGormStoreSuite(t *testing.T) {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		t.Skip("DATABASE_DSN not set; skipping PostgreSQL integration tests")
	}
	suite.Run(t, &GormStoreSuite{dsn: dsn})
}
