// Command seed fills the configured database with fake catalogue data.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"

	"zola/internal/config"
	"zola/internal/database"
	"zola/internal/middleware"
	"zola/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	numUsers := flag.Int("users", defaults.Users, "Number of users to create")
	numWriters := flag.Int("writers", defaults.Writers, "Number of writers to create")
	numBooks := flag.Int("books", defaults.Books, "Number of books to create")
	readers := flag.Int("readers", defaults.ReadersPerUser, "Reading-list entries per user")
	comments := flag.Int("comments", defaults.CommentsPerBook, "Root comments per book")
	randSeed := flag.Int64("seed", 0, "Random seed (0 picks one)")
	fast := flag.Bool("fast", false, "Hash passwords at minimum bcrypt cost")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	if err := godotenv.Load(".env.local"); err != nil {
		_ = godotenv.Load()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	middleware.InitLogger(cfg.Env)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	ctx := context.Background()
	s := seed.NewSeeder(db, seed.Options{
		Users:           *numUsers,
		Writers:         *numWriters,
		Books:           *numBooks,
		ReadersPerUser:  *readers,
		CommentsPerBook: *comments,
		FastHash:        *fast,
		RandSeed:        *randSeed,
	})

	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	if _, err := s.Run(ctx); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("All seeded users have the password: %s", seed.DefaultPassword)
}
