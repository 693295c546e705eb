package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"quiz-session-client/internal/app"
	"quiz-session-client/internal/config"
	"quiz-session-client/internal/domain"
	"quiz-session-client/internal/infra/memory"
	pgloader "quiz-session-client/internal/infra/postgres"
	redisinfra "quiz-session-client/internal/infra/redis"
	"quiz-session-client/internal/session"
)

// NewHostCmd builds the subcommand that runs the presenter side of a
// session.
func NewHostCmd(configPath, endpoint *string) *cobra.Command {
	var (
		quizID         string
		roomCode       string
		deferQuestions bool
		window         int
	)

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Host a live quiz session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd.Context(), *configPath, *endpoint, quizID, roomCode, deferQuestions, window)
		},
	}
	cmd.Flags().StringVar(&quizID, "quiz", "", "quiz id to run (required)")
	cmd.Flags().StringVar(&roomCode, "room", "", "room code; generated when omitted and Redis is configured")
	cmd.Flags().BoolVar(&deferQuestions, "defer-questions", false, "let the coordinator load questions by quiz id")
	cmd.Flags().IntVar(&window, "seconds", 30, "default answer window per question, in seconds")
	_ = cmd.MarkFlagRequired("quiz")
	return cmd
}

func runHost(ctx context.Context, configPath, endpointFlag, quizID, roomCode string, deferQuestions bool, window int) error {
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	if roomCode == "" {
		if redisClient == nil {
			// Without a code registry the quiz id doubles as the room code.
			roomCode = quizID
		} else {
			resolver := redisinfra.NewRoomResolver(redisClient, config.Duration(cfg.Redis.TTL, 6*time.Hour))
			roomCode, err = resolver.CreateCode(ctx, quizID)
			if err != nil {
				return err
			}
		}
	}

	quizzes, cleanup, err := buildQuizRepository(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer cleanup()

	printRoomCode(roomCode)

	host, err := app.ConnectHost(ctx, app.HostOptions{
		Options: app.Options{
			Endpoint:     endpoint,
			RoomCode:     roomCode,
			Store:        memory.NewAnswerStore(),
			TickInterval: config.Duration(cfg.Countdown.Tick, 250*time.Millisecond),
			Logger:       logger,
		},
		QuizID:         quizID,
		Quizzes:        quizzes,
		DeferQuestions: deferQuestions,
	})
	if err != nil {
		return err
	}
	defer host.Close()

	if err := host.CreateSession(ctx); err != nil {
		return err
	}

	updates, cancel := host.Subscribe()
	defer cancel()
	go printUpdates(updates, true)

	fmt.Println("commands: next [seconds] | reveal | end | quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "next":
			secs := window
			if len(fields) > 1 {
				if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
					secs = n
				}
			}
			if err := host.NextQuestion(time.Duration(secs) * time.Second); err != nil {
				return err
			}
		case "reveal":
			if err := host.RevealAnswer(); err != nil {
				return err
			}
		case "end":
			if err := host.EndSession(); err != nil {
				return err
			}
		case "quit":
			return nil
		default:
			fmt.Println("commands: next [seconds] | reveal | end | quit")
		}

		select {
		case <-host.Done():
			return host.Err()
		default:
		}
	}
	return scanner.Err()
}

func buildQuizRepository(ctx context.Context, cfg config.Config, redisClient *redis.Client) (app.QuizRepository, func(), error) {
	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	cleanup := func() {}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		cleanup = pool.Close
		loader = pgloader.NewQuizLoader(pool)
	}

	if redisClient != nil {
		return redisinfra.NewQuizRepository(redisClient, loader, quizTTL), cleanup, nil
	}
	return memory.NewQuizRepository(loader, quizTTL), cleanup, nil
}

func printRoomCode(roomCode string) {
	fmt.Printf("room code: %s\n", roomCode)
	if qr, err := qrcode.New(roomCode, qrcode.Medium); err == nil {
		fmt.Println(qr.ToSmallString(false))
	}
}

func printUpdates(updates <-chan session.State, host bool) {
	var last session.State
	for st := range updates {
		if st.Phase != last.Phase || st.QuestionIndex != last.QuestionIndex || len(st.Scoreboard) != len(last.Scoreboard) {
			printState(st, host)
		} else if st.Phase == domain.PhaseQuestionActive && st.Remaining != last.Remaining {
			fmt.Printf("\r%2ds remaining ", st.Remaining)
			if st.Remaining == 0 {
				fmt.Println()
			}
		}
		last = st
	}
}

func printState(st session.State, host bool) {
	switch st.Phase {
	case domain.PhaseLobby:
		fmt.Printf("lobby: %d participant(s)\n", len(st.Scoreboard))
		for _, e := range st.Scoreboard {
			fmt.Printf("  - %s\n", e.Name)
		}
	case domain.PhaseQuestionActive:
		if st.Question != nil {
			fmt.Printf("\nQ%d: %s\n", st.Question.Position+1, st.Question.Text)
			for i, ans := range st.Question.Answers {
				fmt.Printf("  %d) %s\n", i+1, ans)
			}
		}
	case domain.PhaseReveal:
		if st.Question != nil && st.CorrectIndex >= 0 && st.CorrectIndex < len(st.Question.Answers) {
			fmt.Printf("\ncorrect answer: %d) %s\n", st.CorrectIndex+1, st.Question.Answers[st.CorrectIndex])
		}
		printScoreboard(st)
	case domain.PhaseEnded:
		fmt.Println("\nsession ended")
		printScoreboard(st)
	case domain.PhaseDisconnected:
		fmt.Println("connection lost")
	case domain.PhaseError:
		fmt.Printf("error: %s\n", st.ErrorMessage)
	}
}

func printScoreboard(st session.State) {
	for i, e := range st.Scoreboard {
		marker := ""
		if st.PlayerID != "" && e.PlayerID == st.PlayerID {
			marker = " (you)"
		}
		fmt.Printf("  #%d %s: %d%s\n", i+1, e.Name, e.Score, marker)
	}
}

// sampleQuizzes provides demo content when no Postgres is configured.
func sampleQuizzes() map[string]domain.Quiz {
	correct := 1
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID:            "q1",
					Text:          "What is 2 + 2?",
					Answers:       []string{"3", "4", "5"},
					CorrectAnswer: &correct,
					Position:      0,
				},
			},
		},
	}
}
