package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"socialdm/backend/internal/auth"
	"socialdm/backend/internal/bootstrap"
	"socialdm/backend/internal/config"
	"socialdm/backend/internal/models"
	"socialdm/backend/internal/storage"
	"socialdm/backend/pkg/logger"
)

const usage = `Usage: admin <command> [args]

Commands:
  token <user_id>                    issue an access token
  migrate                            create tables / indexes in the configured store
  user <id> <username> [private]     create or update a user profile
  follow <follower_id> <followee_id> record a follow between two users`

// errVolatileStore rejects the in-memory driver: its writes die with the process.
var errVolatileStore = errors.New("admin commands need a persistent store, set STORAGE_DRIVER to postgres or mongo")

func openPersistentStorage(ctx context.Context, cfg *config.Config) (storage.Storage, bootstrap.Closer, error) {
	if cfg.StorageDriver == "" || cfg.StorageDriver == config.DriverMemory {
		return nil, nil, errVolatileStore
	}
	return bootstrap.OpenStorage(ctx, cfg)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Env)
	ctx := context.Background()

	command, args := os.Args[1], os.Args[2:]
	if command == "token" {
		if len(args) != 1 {
			fmt.Println("Usage: admin token <user_id>")
			os.Exit(1)
		}
		if cfg.JWTSecret == "" {
			logger.Fatal().Msg("JWT_SECRET is required to issue tokens")
		}
		token, err := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL).GenerateToken(args[0])
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to issue token")
		}
		fmt.Println(token)
		return
	}

	store, closeStore, err := openPersistentStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer func() { _ = closeStore(ctx) }()

	switch command {
	case "migrate":
		if err := store.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		fmt.Println("Migration complete.")
	case "user":
		if len(args) < 2 || len(args) > 3 {
			fmt.Println("Usage: admin user <id> <username> [private]")
			os.Exit(1)
		}
		private := false
		if len(args) == 3 {
			if private, err = strconv.ParseBool(args[2]); err != nil {
				fmt.Println("Invalid private flag. Use true or false.")
				os.Exit(1)
			}
		}
		if err := upsertUser(ctx, store, args[0], args[1], private); err != nil {
			logger.Fatal().Err(err).Msg("failed to save user")
		}
		fmt.Printf("User %s saved.\n", args[0])
	case "follow":
		if len(args) != 2 {
			fmt.Println("Usage: admin follow <follower_id> <followee_id>")
			os.Exit(1)
		}
		if err := follow(ctx, store, args[0], args[1]); err != nil {
			logger.Fatal().Err(err).Msg("failed to record follow")
		}
		fmt.Printf("%s now follows %s.\n", args[0], args[1])
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

func upsertUser(ctx context.Context, s storage.Storage, id, username string, private bool) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		user = &models.User{ID: id}
	}
	user.Username = username
	if user.DisplayName == "" {
		user.DisplayName = username
	}
	user.IsPrivate = private
	return s.UpsertUser(ctx, user)
}

func follow(ctx context.Context, s storage.Storage, followerID, followeeID string) error {
	follower, err := s.GetUser(ctx, followerID)
	if err != nil {
		return err
	}
	followee, err := s.GetUser(ctx, followeeID)
	if err != nil {
		return err
	}
	if !follower.Follows(followeeID) {
		follower.Following = append(follower.Following, followeeID)
	}
	if !followee.HasFollower(followerID) {
		followee.Followers = append(followee.Followers, followerID)
	}
	if err := s.UpsertUser(ctx, follower); err != nil {
		return err
	}
	return s.UpsertUser(ctx, followee)
}
