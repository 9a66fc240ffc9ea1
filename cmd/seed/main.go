package main

import (
	"log"
	"os"
	"time"

	"agent-memory-be/internal/model"
	"agent-memory-be/pkg/acb"
	"agent-memory-be/pkg/database"

	"github.com/joho/godotenv"
	"gorm.io/datatypes"
)

const (
	demoTenant  = "default"
	demoSession = "demo"
)

func main() {
	// Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(dsn, false)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Seeding demo memory...")

	now := time.Now()
	chunks := []model.Chunk{
		{Category: string(acb.CategoryRules), Kind: acb.KindSafety, Actor: acb.ActorSystem, Content: "Never run destructive commands against the production database.", Importance: 1.0, Ts: now.Add(-72 * time.Hour)},
		{Category: string(acb.CategoryRules), Kind: acb.KindRule, Actor: acb.ActorHuman, Content: "All public functions must have tests.", Importance: 0.9, Ts: now.Add(-48 * time.Hour)},
		{Category: string(acb.CategoryTaskState), Kind: acb.KindTaskState, Actor: acb.ActorAgent, Content: "Current task: migrate the billing worker to the new queue.", Importance: 0.6, Ts: now.Add(-30 * time.Minute)},
		{Category: string(acb.CategoryTaskState), Kind: acb.KindCorrection, Actor: acb.ActorHuman, Content: "No, keep the retry limit at 5, not 3.", Importance: 0.8, Ts: now.Add(-10 * time.Minute)},
		{Category: string(acb.CategoryRecentWindow), Kind: acb.KindMessage, Actor: acb.ActorHuman, Content: "Can you check why the queue consumer stalls after a redeploy?", Importance: 0.4, Ts: now.Add(-2 * time.Minute)},
		{Category: string(acb.CategoryRelevantDecisions), Kind: acb.KindDecision, Actor: acb.ActorHuman, Content: "We chose at-least-once delivery with idempotent handlers.", Importance: 0.6, Ts: now.Add(-240 * time.Hour)},
		{Category: string(acb.CategoryRetrievedEvidence), Kind: acb.KindEvidence, Actor: acb.ActorSystem, Content: "The consumer acks only after the handler commits its transaction.", Importance: 0.5, Ts: now.Add(-6 * time.Hour)},
		{Category: string(acb.CategoryCapsules), Kind: acb.KindCapsule, Actor: acb.ActorAgent, Content: "Summary of last week: queue migration planned, billing worker first.", Importance: 0.5, Ts: now.Add(-168 * time.Hour)},
	}

	for _, c := range chunks {
		c.TenantId = demoTenant
		c.SessionId = demoSession
		c.Sensitivity = acb.SensitivityNone
		c.Tokens = acb.EstimateTokens(c.Content)
		c.Tags = datatypes.JSONSlice[string]{"seed"}

		// Check if chunk with this content already exists
		var existing model.Chunk
		if err := db.Where("tenant_id = ? AND content = ?", c.TenantId, c.Content).First(&existing).Error; err == nil {
			log.Printf("Chunk '%s' already exists, skipping...", c.Kind)
			continue
		}

		if err := db.Create(&c).Error; err != nil {
			log.Printf("Error creating %s chunk: %v", c.Kind, err)
		} else {
			log.Printf("Created %s chunk in %s", c.Kind, c.Category)
		}
	}

	log.Println("Demo memory seeding completed!")
}
