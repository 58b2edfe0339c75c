package database

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/pourhouselabs/barback/internal/catalog"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsLowercasesCatalogTags(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&catalog.Record{}, &catalog.TagRecord{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	row := catalog.TagRecord{
		Collection: catalog.CollectionIngredients,
		DocID:      "ing-1",
		Position:   0,
		Tag:        " Citrus ",
	}
	if err := database.Create(&row).Error; err != nil {
		testContext.Fatalf("failed to insert tag row: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored catalog.TagRecord
	if err := database.Where("collection = ? AND doc_id = ?", row.Collection, row.DocID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload tag row: %v", err)
	}
	if stored.Tag != "citrus" {
		testContext.Fatalf("expected tag to be normalized, got %q", stored.Tag)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationLowercaseCatalogTags).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}
