package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/police-dispatch-api/config"
	"github.com/linesmerrill/police-dispatch-api/databases"
	"github.com/linesmerrill/police-dispatch-api/models"
)

// errUserExists is returned when creating a user whose email is taken
var errUserExists = errors.New("user already exists")

var (
	userEmail    string
	userName     string
	userPassword string
	userRoles    []string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage API users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user that can request tokens",
	Example: `  police-dispatch-api user create --email dispatcher@example.com --password s3cret --roles dispatch
  police-dispatch-api user create --email civ@example.com --password s3cret`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUsers(cmd, func(ctx context.Context, users databases.UserDatabase) error {
			if err := createUser(ctx, users, userEmail, userName, userPassword, userRoles, time.Now().UTC()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s with roles %v\n", userEmail, userRoles)
			return nil
		})
	},
}

var userPasswordCmd = &cobra.Command{
	Use:   "set-password",
	Short: "Replace a user's password",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUsers(cmd, func(ctx context.Context, users databases.UserDatabase) error {
			if err := setPassword(ctx, users, userEmail, userPassword, time.Now().UTC()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated password for %s\n", userEmail)
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{userCreateCmd, userPasswordCmd} {
		c.Flags().StringVar(&userEmail, "email", "", "user email, used as the basic auth username")
		c.Flags().StringVar(&userPassword, "password", "", "plain text password, stored as a bcrypt hash")
		_ = c.MarkFlagRequired("email")
		_ = c.MarkFlagRequired("password")
	}
	userCreateCmd.Flags().StringVar(&userName, "username", "", "display name")
	userCreateCmd.Flags().StringSliceVar(&userRoles, "roles", nil, "comma separated roles, dispatch grants call updates")

	userCmd.AddCommand(userCreateCmd, userPasswordCmd)
	rootCmd.AddCommand(userCmd)
}

func withUsers(cmd *cobra.Command, fn func(ctx context.Context, users databases.UserDatabase) error) error {
	conf := config.New()
	ctx, cancel := commandContext(cmd)
	defer cancel()

	db, disconnect, err := connect(ctx, conf)
	if err != nil {
		return err
	}
	defer disconnect()
	return fn(ctx, databases.NewUserDatabase(db))
}

func createUser(ctx context.Context, users databases.UserDatabase, email, username, password string, roles []string, now time.Time) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return fmt.Errorf("email and password are required")
	}

	_, err := users.FindOne(ctx, bson.M{"user.email": email})
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", errUserExists, email)
	case !errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("failed to get user by email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if roles == nil {
		roles = []string{}
	}

	_, err = users.InsertOne(ctx, models.UserDetails{
		Email:     email,
		Username:  username,
		Password:  string(hash),
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func setPassword(ctx context.Context, users databases.UserDatabase, email, password string, now time.Time) error {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	res, err := users.UpdateOne(ctx, bson.M{"user.email": email}, bson.M{"$set": bson.M{
		"user.password":  string(hash),
		"user.updatedAt": now,
	}})
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("no user with email %s", email)
	}
	return nil
}
