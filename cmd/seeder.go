package cmd

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/wingscash/books-gateway/internal/auth"
	authpg "github.com/wingscash/books-gateway/internal/auth/postgres"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample users for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := gorm.Open(postgres.Open(cfg.Database.Source), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to open db: %v", err)
		}

		if clearData {
			if err := db.Exec("DELETE FROM pending_expenses").Error; err != nil {
				log.Fatalf("failed to clear pending_expenses: %v", err)
			}
			if err := db.Exec("DELETE FROM users").Error; err != nil {
				log.Fatalf("failed to clear users: %v", err)
			}
			fmt.Println("Cleared existing data")
		}

		userRepo := authpg.NewUserRepository(db)
		hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)

		users := []auth.User{
			{
				ID:           uuid.NewString(),
				Email:        "admin@wingscash.test",
				Name:         "Admin",
				PasswordHash: string(hash),
				IsAdmin:      true,
				IsActive:     true,
			},
			{
				ID:                uuid.NewString(),
				Email:             "staff@wingscash.test",
				Name:              "Staff",
				PasswordHash:      string(hash),
				IsAdmin:           false,
				AllowedAccountIDs: auth.StringList{},
				IsActive:          true,
			},
		}

		for i := range users {
			if _, err := userRepo.GetByEmail(users[i].Email); err == nil {
				fmt.Println("user already exists:", users[i].Email)
				continue
			}
			if err := userRepo.Create(&users[i]); err != nil {
				log.Fatalf("failed to seed user %s: %v", users[i].Email, err)
			}
			fmt.Println("Seeded user:", users[i].Email)
		}
	},
}
