package main

import (
	"flag"
	"log"

	"github.com/oggyb/crosspost-earnings/internal/config"
	"github.com/oggyb/crosspost-earnings/internal/db"
)

func main() {
	minimal := flag.Bool("minimal", false, "seed the small deterministic dataset used by tests")
	flag.Parse()

	// Load configuration
	cfg := config.New()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Fatalf("failed to init db: %v", err)
	}

	seed := db.SeedTestData
	if *minimal {
		seed = db.SeedMinimalTestData
	}
	if err := seed(database); err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	log.Println("Seeding completed.")
}
