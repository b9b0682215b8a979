package main

import (
	"fmt"
	"os"

	"github.com/mpavlenko/gadfly/common/environment"
	"github.com/mpavlenko/gadfly/common/version"
	"github.com/mpavlenko/gadfly/internal/gadfly/app"
	"github.com/mpavlenko/gadfly/internal/gadfly/compose"
	"github.com/mpavlenko/gadfly/internal/gadfly/engine"
	"github.com/mpavlenko/gadfly/internal/gadfly/llm"
	"github.com/mpavlenko/gadfly/internal/gadfly/matrix"
)

func main() {
	fmt.Printf("Gadfly\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	gadfly, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Gadfly: %v\n", err)
		os.Exit(1)
	}
	defer gadfly.Stop()

	if err := gadfly.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Gadfly: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from environment variables. Engine tunables
// not set in the environment fall back to the engine defaults.
func loadConfig() (*app.Config, error) {
	homeserver, err := environment.RequiredString("MATRIX_HOMESERVER")
	if err != nil {
		return nil, err
	}
	userID, err := environment.RequiredString("MATRIX_USER_ID")
	if err != nil {
		return nil, err
	}
	accessToken, err := environment.RequiredString("MATRIX_ACCESS_TOKEN")
	if err != nil {
		return nil, err
	}
	apiKey, err := environment.RequiredString("GADFLY_LLM_API_KEY")
	if err != nil {
		return nil, err
	}

	return &app.Config{
		DatabasePath: environment.StringOr("DATABASE_PATH", "./gadfly.db"),
		Matrix: matrix.Config{
			Homeserver:  homeserver,
			UserID:      userID,
			AccessToken: accessToken,
			Rooms:       environment.StringSliceOr("MATRIX_ROOMS", nil),
		},
		LLM: llm.Config{
			APIKey:      apiKey,
			BaseURL:     environment.StringOr("GADFLY_LLM_ENDPOINT", ""),
			Model:       environment.StringOr("GADFLY_LLM_MODEL", ""),
			Timeout:     environment.DurationOr("GADFLY_LLM_TIMEOUT", 0),
			MaxTokens:   environment.IntOr("GADFLY_LLM_MAX_TOKENS", 0),
			Temperature: environment.FloatOr("GADFLY_LLM_TEMPERATURE", 0),
		},
		Engine: engine.Settings{
			ReplyChance:     environment.FloatOr("GADFLY_REPLY_CHANCE", 0),
			ActiveWindow:    environment.DurationOr("GADFLY_ACTIVE_WINDOW", 0),
			MuteDuration:    environment.DurationOr("GADFLY_MUTE_DURATION", 0),
			SendCooldown:    environment.DurationOr("GADFLY_SEND_COOLDOWN", 0),
			BatchWindow:     environment.DurationOr("GADFLY_BATCH_WINDOW", 0),
			MaxBatchItems:   environment.IntOr("GADFLY_MAX_BATCH_ITEMS", 0),
			MemoryCapacity:  environment.IntOr("GADFLY_MEMORY_CAPACITY", 0),
			NudgeSilence:    environment.DurationOr("GADFLY_NUDGE_SILENCE", 0),
			NudgeChance:     environment.FloatOr("GADFLY_NUDGE_CHANCE", 0),
			GreetSilence:    environment.DurationOr("GADFLY_GREET_SILENCE", 0),
			GreetSchedule:   environment.StringOr("GADFLY_GREET_SCHEDULE", ""),
			DailyMessageCap: environment.IntOr("GADFLY_DAILY_MESSAGE_CAP", 0),
		},
		Compose: compose.Config{
			MaxLines:     environment.IntOr("GADFLY_MAX_LINES", 0),
			MaxLineChars: environment.IntOr("GADFLY_MAX_LINE_CHARS", 0),
		},
		LexiconPath:   environment.StringOr("GADFLY_LEXICON_PATH", ""),
		BotHandle:     environment.StringOr("GADFLY_BOT_HANDLE", ""),
		CommandPrefix: environment.StringOr("GADFLY_COMMAND_PREFIX", ""),
	}, nil
}
