package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"licensegate/backend/internal/auth"
	"licensegate/backend/internal/config"
	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/storage"
	"licensegate/backend/internal/storage/hybrid"
	"licensegate/backend/internal/storage/memory"
)

// main 创建管理员账户。
//
// 读取与服务端相同的配置：配置了数据库时写入数据库，
// 否则写入内存存储（仅用于验证流程，进程退出即丢失）。
func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: create-admin <email> <password> <username> [super|admin]")
		os.Exit(1)
	}

	email := os.Args[1]
	password := os.Args[2]
	username := os.Args[3]
	roleStr := "admin"
	if len(os.Args) >= 5 {
		roleStr = os.Args[4]
	}

	var role domain.UserRole
	if roleStr == "super" {
		role = domain.RoleSuper
	} else {
		role = domain.RoleAdmin
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var store storage.Store
	persistent := cfg.Database.Type != "" && cfg.Database.DSN != ""
	if persistent {
		store, err = hybrid.NewStoreWithType(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
		)
		if err != nil {
			fmt.Printf("Failed to connect storage: %v\n", err)
			os.Exit(1)
		}
	} else {
		store = memory.NewStore()
	}
	defer store.Close()

	if !auth.ValidateEmail(email) {
		fmt.Println("Invalid email format")
		os.Exit(1)
	}

	if err := auth.ValidatePassword(password); err != nil {
		fmt.Printf("Invalid password: %v\n", err)
		os.Exit(1)
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		fmt.Printf("Failed to hash password: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: hashedPassword,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := store.CreateUser(user); err != nil {
		fmt.Printf("Failed to create user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Admin user created successfully!\n")
	fmt.Printf("  ID:       %s\n", user.ID)
	fmt.Printf("  Email:    %s\n", user.Email)
	fmt.Printf("  Username: %s\n", user.Username)
	fmt.Printf("  Role:     %s\n", user.Role)
	if !persistent {
		fmt.Println("\nNote: no database configured, the user exists only in memory.")
	}
}
