package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atinyakov/PhotoKeeper/internal/client/auth"
	"github.com/atinyakov/PhotoKeeper/internal/client/guard"
)

func (c *cli) newRegisterCmd() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.Enter(guard.PathRegister); err != nil {
				return err
			}
			return c.register(cmd, app, name, email)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (prompted when empty)")
	cmd.Flags().StringVar(&email, "email", "", "email address (prompted when empty)")
	return cmd
}

// register prompts for the missing fields and submits the form.
func (c *cli) register(cmd *cobra.Command, app *App, name, email string) error {
	creds, err := c.prompt.PromptRegister(name, email)
	if err != nil {
		return err
	}
	if err := auth.ValidateRegistration(creds.Name, creds.Email, creds.Password, creds.Confirm); err != nil {
		return err
	}
	res, err := app.Auth.Register(cmd.Context(), creds.Name, creds.Email, creds.Password)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if res.Session != nil {
		fmt.Fprintf(out, "Registered and logged in as %s\n", res.User.Email)
		return nil
	}
	fmt.Fprintf(out, "Registered %s. Log in to continue.\n", res.User.Email)
	return nil
}

func (c *cli) newLoginCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.Enter(guard.PathLogin); err != nil {
				return err
			}
			_, err = c.login(cmd, app, email)
			return err
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address (prompted when empty)")
	return cmd
}

// login prompts for credentials and returns the view to continue with.
func (c *cli) login(cmd *cobra.Command, app *App, email string) (string, error) {
	creds, err := c.prompt.PromptLogin(email)
	if err != nil {
		return "", err
	}
	sess, err := app.Auth.Login(cmd.Context(), creds.Email, creds.Password)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", sess.User.Email)
	return app.Guard.LoginSucceeded(), nil
}

func (c *cli) newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func (c *cli) newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			u, ok := app.Auth.CurrentUser()
			if !ok {
				return ErrLoginRequired
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatUser(u.Name, u.Email, u.ID))
			return nil
		},
	}
}

func formatUser(name, email string, id *int64) string {
	s := fmt.Sprintf("%s <%s>", name, email)
	if id != nil {
		s += fmt.Sprintf(" (id %d)", *id)
	}
	return s
}
