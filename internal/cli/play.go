package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-session-client/internal/app"
	"quiz-session-client/internal/config"
	"quiz-session-client/internal/domain"
	"quiz-session-client/internal/infra/memory"
	redisinfra "quiz-session-client/internal/infra/redis"
	"quiz-session-client/internal/session"
)

// NewPlayCmd builds the subcommand that joins a session as a participant.
func NewPlayCmd(configPath, endpoint *string) *cobra.Command {
	var (
		roomCode string
		name     string
		playerID string
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a live quiz session as a participant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), *configPath, *endpoint, roomCode, name, playerID)
		},
	}
	cmd.Flags().StringVar(&roomCode, "room", "", "room code to join (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&playerID, "player-id", "", "previously assigned player id, to reclaim an identity")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

func runPlay(ctx context.Context, configPath, endpointFlag, roomCode, name, playerID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger()

	endpoint := endpointFlag
	if endpoint == "" {
		endpoint = cfg.Coordinator.Endpoint
	}
	if endpoint == "" {
		return fmt.Errorf("coordinator endpoint not configured")
	}

	if name == "" {
		name = "player-" + uuid.NewString()[:8]
	}

	var store session.AnswerStore = memory.NewAnswerStore()
	var rooms app.RoomResolver
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ttl := config.Duration(cfg.Redis.TTL, 6*time.Hour)
		store = redisinfra.NewAnswerStore(client, ttl)
		rooms = redisinfra.NewRoomResolver(client, ttl)
	}

	player, err := app.ConnectPlayer(ctx, app.Options{
		Endpoint:     endpoint,
		RoomCode:     roomCode,
		Name:         name,
		PlayerID:     playerID,
		Store:        store,
		Rooms:        rooms,
		TickInterval: config.Duration(cfg.Countdown.Tick, time.Second),
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer player.Close()

	updates, cancel := player.Subscribe()
	defer cancel()
	go printUpdates(updates, false)

	fmt.Printf("joined room %s as %s; type an option number to answer\n", roomCode, name)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "quit" {
			return nil
		}
		n, err := strconv.Atoi(text)
		if err != nil || n < 1 {
			continue
		}
		switch err := player.Answer(ctx, n-1); err {
		case nil:
			fmt.Println("answer submitted")
		case domain.ErrAlreadyAnswered:
			fmt.Println("already answered this question")
		case domain.ErrSubmissionClosed:
			fmt.Println("answers are closed")
		case domain.ErrSessionEnded:
			fmt.Println("session has ended")
			return nil
		default:
			return err
		}

		select {
		case <-player.Done():
			return player.Err()
		default:
		}
	}
	return scanner.Err()
}
