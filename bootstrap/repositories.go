package bootstrap

import (
	"github.com/wjixiang/aikb/platform/database"
	"github.com/wjixiang/aikb/repository"
)

type Repositories struct {
	DocumentRepository repository.DocumentRepository
}

func NewRepositories(db *database.DB) *Repositories {
	sqlDB := db.GetDatabase()
	return &Repositories{
		DocumentRepository: repository.NewDocumentRepository(sqlDB),
	}
}
