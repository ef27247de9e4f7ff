// Package cli implements the chatcli command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"clanchat/internal/client/api"
	"clanchat/internal/client/socket"
	"clanchat/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	serverURL string
	token     string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "chatcli",
	Short: "Command line client for clanchat",
	Long: `chatcli talks to a clanchat server: it lists clans, reads and posts
room messages, follows a room live and works the notification feed.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "warn"
		if verbose {
			level = "debug"
		}
		logger.Configure(level, "text")
	},
}

// Execute runs the command tree. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("CLANCHAT_SERVER", "http://localhost:8080"), "server base URL")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", os.Getenv("CLANCHAT_TOKEN"), "auth token (see login)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newAPI() *api.Client {
	return api.New(serverURL, token, nil)
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

type identity struct {
	ID   string
	Name string
}

// whoami reads the caller from the token's claims. The server checks the
// signature; here the claims only name the local user.
func whoami() (identity, error) {
	if token == "" {
		return identity{}, fmt.Errorf("no token: run login or set CLANCHAT_TOKEN")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return identity{}, fmt.Errorf("unreadable token: %w", err)
	}
	id, _ := claims["user_id"].(string)
	name, _ := claims["username"].(string)
	if id == "" {
		return identity{}, fmt.Errorf("token has no user id")
	}
	return identity{ID: id, Name: name}, nil
}

// connect opens the push channel for the current token.
func connect(ctx context.Context, client *api.Client, self identity) (*socket.Manager, error) {
	m := socket.NewManager(socket.WebsocketDialer(client.SocketURL()))
	if err := m.Initialize(ctx, self.ID); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	go func() {
		for err := range m.Errors() {
			fmt.Fprintf(os.Stderr, "⚠️  %v\n", err)
		}
	}()
	return m, nil
}
