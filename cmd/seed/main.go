package main

import (
	stderrors "errors"
	"fmt"
	"gigchat/auth"
	"gigchat/domain"
	"gigchat/errors"
	"gigchat/repositories"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
}

// run creates the accounts of a local environment. Existing accounts are
// kept as they are, so running it twice is harmless.
func run() error {
	_ = godotenv.Load()
	config, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err = auth.ValidateResetPassword(auth.ResetPasswordRequest{Token: "seed", NewPassword: config.Password}); err != nil {
		return fmt.Errorf("SEED_PASSWORD: %w", err)
	}

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer db.Close()

	users, err := repositories.NewUserRepository(db)
	if err != nil {
		return err
	}
	defer func() { _ = users.Close() }()

	hash, err := auth.HashPassword(config.Password)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Email", "Status"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	var ids []int64
	for _, email := range lo.Uniq(lo.Map(config.Users, func(e string, _ int) string { return auth.NormalizeEmail(e) })) {
		user, status, err := ensureUser(users, email, hash)
		if err != nil {
			return fmt.Errorf("seeding %s: %w", email, err)
		}
		ids = append(ids, user.ID)
		table.Append([]string{strconv.FormatInt(user.ID, 10), user.Email, paint(config, status)})
	}

	header := fmt.Sprintf("  ====== %d users in %s ======", len(ids), config.BadgerFilepath)
	if config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	fmt.Println(header)
	table.Render()

	if !config.Conversation || len(ids) < 2 {
		return nil
	}
	return seedConversation(db, ids)
}

func ensureUser(users *repositories.UserRepository, email, hash string) (repositories.User, string, error) {
	user, err := users.CreateUser(email, hash)
	if err == nil {
		return user, "created", nil
	}
	if !stderrors.Is(err, errors.ErrUserAlreadyExists) {
		return repositories.User{}, "", err
	}
	user, err = users.GetUserByEmail(email)
	return user, "existing", err
}

func seedConversation(db *badger.DB, ids []int64) error {
	conversations, err := repositories.NewConversationRepository(db, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = conversations.Close() }()

	now := time.Now()
	conversation, err := conversations.CreateConversation(true, lo.ToPtr("Welcome"), ids, now)
	if err != nil {
		return err
	}
	_, err = conversations.AppendMessage(domain.Message{
		ConversationID: conversation.ID,
		SenderID:       ids[0],
		Body:           lo.ToPtr("Hello everyone"),
		Kind:           domain.DefaultKind,
		CreatedAt:      now,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Conversation %d created with %d participants\n", conversation.ID, len(ids))
	return nil
}

func paint(config Config, status string) string {
	if !config.Colours {
		return status
	}
	if status == "created" {
		return color.FgGreen.Render(status)
	}
	return color.FgYellow.Render(status)
}
