package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cuemby/agrilo/pkg/types"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login IDENTIFIER",
	Short: "Log in with an email or phone number",
	Long: `Log in with an email address or phone number and a password.

The password is prompted for when --password is not given.

Examples:
  agrilo login asha@example.com
  agrilo login 9876543210 --password secret`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runLogin),
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and log in",
	RunE:  withApp(runRegister),
}

var loginFederatedCmd = &cobra.Command{
	Use:   "login-federated ID_TOKEN",
	Short: "Log in with an identity token from a federated provider",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		profile, err := a.session.LoginWithFederatedToken(ctx, args[0])
		if err != nil {
			return err
		}
		return printWelcome(a, profile)
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and remove the stored token",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		if a.tokens.Token() == "" {
			fmt.Fprintln(a.out, "Not logged in")
			return nil
		}
		if err := a.session.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "✓ Logged out")
		return nil
	}),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		if err := a.requireLogin(ctx); err != nil {
			return err
		}
		return printProfile(a, a.session.Profile())
	}),
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the user profile",
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update profile fields",
	Long: `Update profile fields. Only the flags given are sent; everything else
is left as it is.

Examples:
  agrilo profile update --name "Asha Patil" --village Shirur
  agrilo profile update --push=false --weekly-report`,
	RunE: withApp(runProfileUpdate),
}

var langCmd = &cobra.Command{
	Use:   "lang",
	Short: "Show or change the preferred language",
}

var langGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the preferred language",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		lang := a.session.Language()
		return a.print(map[string]string{"language": lang}, func(w io.Writer) {
			fmt.Fprintln(w, lang)
		})
	}),
}

var langSetCmd = &cobra.Command{
	Use:   "set LANG",
	Short: "Change the preferred language (" + strings.Join(types.SupportedLanguages, ", ") + ")",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		if err := a.session.SetLanguage(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "✓ Language set to %s\n", a.session.Language())
		return nil
	}),
}

func init() {
	loginCmd.Flags().String("password", "", "Account password (prompted when empty)")

	registerCmd.Flags().String("name", "", "Full name (required)")
	registerCmd.Flags().String("email", "", "Email address or phone number used to log in (required)")
	registerCmd.Flags().String("phone", "", "Phone number")
	registerCmd.Flags().String("password", "", "Account password (prompted when empty)")
	registerCmd.Flags().String("language", "", "Preferred language (defaults to the current one)")
	_ = registerCmd.MarkFlagRequired("name")
	_ = registerCmd.MarkFlagRequired("email")

	addProfileFlags(profileUpdateCmd)

	profileCmd.AddCommand(profileUpdateCmd)
	langCmd.AddCommand(langGetCmd)
	langCmd.AddCommand(langSetCmd)

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(loginFederatedCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(langCmd)
}

func addProfileFlags(cmd *cobra.Command) {
	pf := cmd.Flags()
	pf.String("name", "", "Full name")
	pf.String("phone", "", "Phone number")
	pf.String("language", "", "Preferred language")
	pf.String("password", "", "New password")
	pf.String("address", "", "Farm address")
	pf.String("village", "", "Village")
	pf.String("district", "", "District")
	pf.String("state", "", "State")
	pf.Bool("push", true, "Push notifications")
	pf.Bool("weekly-report", false, "Weekly report notifications")
	pf.Bool("email-notifications", true, "Email notifications")
}

func runLogin(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		var err error
		if password, err = promptPassword(cmd, "Password: "); err != nil {
			return err
		}
	}

	profile, err := a.session.Login(ctx, args[0], password)
	if err != nil {
		return err
	}
	return printWelcome(a, profile)
}

func runRegister(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	phone, _ := cmd.Flags().GetString("phone")
	password, _ := cmd.Flags().GetString("password")
	language, _ := cmd.Flags().GetString("language")

	if password == "" {
		var err error
		if password, err = promptPassword(cmd, "Choose a password: "); err != nil {
			return err
		}
	}

	profile, err := a.session.Register(ctx, types.Registration{
		Name:     name,
		Email:    email,
		Phone:    phone,
		Password: password,
		Language: language,
	})
	if err != nil {
		return err
	}
	return printWelcome(a, profile)
}

func runProfileUpdate(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if err := a.requireLogin(ctx); err != nil {
		return err
	}

	update := profileUpdateFromFlags(cmd, a.session.Profile())
	if update.IsEmpty() {
		return fmt.Errorf("nothing to update, pass at least one flag")
	}

	profile, err := a.session.UpdateProfile(ctx, update)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "✓ Profile updated")
	return printProfile(a, profile)
}

// profileUpdateFromFlags builds a partial update from the flags the user set.
// Location and notification settings are replaced whole by the backend, so
// the current values fill in whatever was not given.
func profileUpdateFromFlags(cmd *cobra.Command, current *types.Profile) types.ProfileUpdate {
	flags := cmd.Flags()
	var update types.ProfileUpdate

	str := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}
	update.Name = str("name")
	update.Phone = str("phone")
	update.Language = str("language")
	update.Password = str("password")

	if flags.Changed("address") || flags.Changed("village") || flags.Changed("district") || flags.Changed("state") {
		var loc types.Location
		if current != nil && current.Location != nil {
			loc = *current.Location
		}
		if v := str("address"); v != nil {
			loc.Address = *v
		}
		if v := str("village"); v != nil {
			loc.Village = *v
		}
		if v := str("district"); v != nil {
			loc.District = *v
		}
		if v := str("state"); v != nil {
			loc.State = *v
		}
		update.Location = &loc
	}

	if flags.Changed("push") || flags.Changed("weekly-report") || flags.Changed("email-notifications") {
		notif := types.DefaultNotificationSettings()
		if current != nil && current.Settings != nil && current.Settings.Notifications != nil {
			notif = *current.Settings.Notifications
		}
		if flags.Changed("push") {
			notif.Push, _ = flags.GetBool("push")
		}
		if flags.Changed("weekly-report") {
			notif.WeeklyReport, _ = flags.GetBool("weekly-report")
		}
		if flags.Changed("email-notifications") {
			notif.Email, _ = flags.GetBool("email-notifications")
		}
		update.Settings = &types.Settings{Notifications: &notif}
	}

	return update
}

// promptPassword reads a password without echo from a terminal, or a
// single line from piped input
func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(data), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("password is required")
	}
	return password, nil
}

func printWelcome(a *app, profile *types.Profile) error {
	return a.print(profile, func(w io.Writer) {
		name := profile.Name
		if name == "" {
			name = profile.Email
		}
		fmt.Fprintf(w, "✓ Logged in as %s\n", name)
	})
}

func printProfile(a *app, profile *types.Profile) error {
	return a.print(profile, func(w io.Writer) {
		fmt.Fprintf(w, "Name:      %s\n", profile.Name)
		fmt.Fprintf(w, "Email:     %s\n", profile.Email)
		if profile.Phone != "" {
			fmt.Fprintf(w, "Phone:     %s\n", profile.Phone)
		}
		if profile.Role != "" {
			fmt.Fprintf(w, "Role:      %s\n", profile.Role)
		}
		if profile.Language != "" {
			fmt.Fprintf(w, "Language:  %s\n", profile.Language)
		}
		if loc := profile.Location; loc != nil {
			parts := make([]string, 0, 4)
			for _, p := range []string{loc.Address, loc.Village, loc.District, loc.State} {
				if p != "" {
					parts = append(parts, p)
				}
			}
			fmt.Fprintf(w, "Location:  %s\n", strings.Join(parts, ", "))
		}
		if s := profile.Settings; s != nil && s.Notifications != nil {
			n := s.Notifications
			fmt.Fprintf(w, "Notify:    push=%t weekly-report=%t email=%t\n", n.Push, n.WeeklyReport, n.Email)
		}
	})
}
