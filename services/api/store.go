package api

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"usbdrop/pkg/bus"
	gos3 "usbdrop/pkg/s3"
)

// Store holds external dependencies required by the API layer. S3 and Bus
// are optional; handlers degrade when they are absent.
type Store struct {
	DB  *pgxpool.Pool
	ORM *gorm.DB
	S3  *gos3.Client
	Bus *bus.Bus
}
