package cli

import (
	"fmt"

	"clanchat/internal/models"

	"github.com/spf13/cobra"
)

func init() {
	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")

	registerCmd.Flags().String("username", "", "display name")
	registerCmd.Flags().String("email", "", "account email")
	registerCmd.Flags().String("password", "", "account password")
	_ = registerCmd.MarkFlagRequired("username")
	_ = registerCmd.MarkFlagRequired("email")
	_ = registerCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(loginCmd, registerCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and print a token",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")

		ctx, cancel := requestContext(cmd)
		defer cancel()
		resp, err := newAPI().Login(ctx, email, password)
		if err != nil {
			return err
		}
		printToken(cmd, resp)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and print a token",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req models.RegisterRequest
		req.Username, _ = cmd.Flags().GetString("username")
		req.Email, _ = cmd.Flags().GetString("email")
		req.Password, _ = cmd.Flags().GetString("password")

		ctx, cancel := requestContext(cmd)
		defer cancel()
		resp, err := newAPI().Register(ctx, req)
		if err != nil {
			return err
		}
		printToken(cmd, resp)
		return nil
	},
}

func printToken(cmd *cobra.Command, resp *models.LoginResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✅ Logged in as %s (%s)\n", resp.User.Username, resp.User.ID)
	fmt.Fprintf(out, "export CLANCHAT_TOKEN=%s\n", resp.Token)
}
