package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"go-canvas/internal/db"
	"go-canvas/internal/design"
	myMiddleware "go-canvas/internal/middleware"
	"go-canvas/internal/room"
	"go-canvas/internal/user"
)

func main() {
	// 1. Config & Flags
	addr := flag.String("addr", ":8080", "http service address")
	flag.Parse()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("❌ DB_DSN is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("❌ JWT_SECRET is not set")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(dsn)
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	log.Println("✅ Database Schema Initialized")

	// 3. Connect to Redis (relay bus between instances)
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	log.Println("✅ Connected to Redis")

	// 4. Users & Auth
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, jwtSecret)
	userHandler := user.NewHandler(userService)
	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 5. Designs (persistence + snapshot sync endpoint)
	designRepo := design.NewRepository(database.Conn)
	designHandler := design.NewHandler(designRepo)

	// 6. Realtime relay
	hub := room.NewHub(redisClient)
	go hub.Run()
	roomHandler := room.NewHandler(hub)

	// 7. Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users/search", userHandler.SearchUsers)

		// WebSocket (Real-time relay)
		r.Get("/ws", roomHandler.ServeWs)

		// Designs
		r.Post("/api/designs", designHandler.Create)
		r.Get("/api/designs", designHandler.List)
		r.Get("/api/designs/{id}", designHandler.Get)
		r.Delete("/api/designs/{id}", designHandler.Delete)
		r.Get("/api/designs/{id}/sync", designHandler.Sync)
		r.Put("/api/designs/{id}/save", designHandler.Save)

		// Comments
		r.Post("/api/designs/{id}/comments", designHandler.AddComment)
		r.Get("/api/designs/{id}/comments", designHandler.ListComments)
		r.Delete("/api/designs/{id}/comments/{commentId}", designHandler.DeleteComment)
	})

	log.Printf("🚀 Server starting on %s", *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		log.Fatal(err)
	}
}
