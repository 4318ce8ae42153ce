package versions

import (
	"log"

	"form_platform/platform/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Topics every fresh deployment starts with. Admins can add more through the
// topic endpoints.
var defaultTopics = []string{"Education", "Quiz", "Poll", "Other"}

func seedTopics(txn *gorm.DB) error {
	for _, name := range defaultTopics {
		var existing schema.Topic
		result := txn.Limit(1).Find(&existing, "name = ?", name)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 0 {
			continue
		}

		if err := txn.Create(&schema.Topic{Id: uuid.New(), Name: name}).Error; err != nil {
			return err
		}
	}

	return nil
}

func Migration_0_initial_migration(txn *gorm.DB) error {
	log.Println("performing initial schema migration")

	if err := txn.Migrator().AutoMigrate(schema.AllModels()...); err != nil {
		return err
	}

	if err := seedTopics(txn); err != nil {
		return err
	}

	log.Println("initial schema migration complete")

	return nil
}
