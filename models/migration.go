package models

import (
	"log"

	"bitbucket.org/mmdatafocus/stocklink_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&ItemAllocation{},
		&ItemBalance{}, &ItemBatchBalance{},
		&FifoCostHistory{}, &WaCostHistory{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
