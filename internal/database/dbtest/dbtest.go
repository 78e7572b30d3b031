// Package dbtest opens throwaway in-memory databases for tests.
package dbtest

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/circlechat/internal/database"
	"github.com/thereayou/circlechat/internal/models"
	"gorm.io/gorm/logger"
)

// Open returns a migrated database that lives as long as the test.
func Open(t testing.TB) *database.Database {
	t.Helper()

	db, err := database.Open(sqlite.Open(":memory:"), logger.Silent)
	require.NoError(t, err)

	// One connection, otherwise every pooled connection sees its own empty
	// in-memory database.
	sqlDB, err := db.Gorm().DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func CreateUser(t testing.TB, db *database.Database, name, role string) *models.User {
	t.Helper()

	user := &models.User{Name: name, Email: name + "@example.test", Role: role, IsActive: true}
	require.NoError(t, db.Gorm().Create(user).Error)
	return user
}

func CreateCircle(t testing.TB, db *database.Database, name string, teacher *models.User, members ...*models.User) *models.StudyCircle {
	t.Helper()

	circle := &models.StudyCircle{Name: name, TeacherID: teacher.ID, IsActive: true}
	for _, m := range members {
		circle.Members = append(circle.Members, *m)
	}
	require.NoError(t, db.Gorm().Omit("Teacher").Create(circle).Error)
	return circle
}
