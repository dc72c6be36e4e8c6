package main

import (
	"context"
	"fmt"

	auth "github.com/felapi/fel-auth"
	"github.com/felapi/fel-auth/persistence"
	"github.com/go-extras/cobraflags"
	"github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	"github.com/spf13/cobra"
)

const (
	emailFlag     = "email"
	passwordFlag  = "password"
	firstNameFlag = "first-name"
	lastNameFlag  = "last-name"
)

var adminFlags = map[string]cobraflags.Flag{
	emailFlag: &cobraflags.StringFlag{
		Name:  emailFlag,
		Value: "",
		Usage: "Administrator email (required)",
	},
	passwordFlag: &cobraflags.StringFlag{
		Name:  passwordFlag,
		Value: "",
		Usage: "Administrator password, at least 6 characters (required)",
	},
	firstNameFlag: &cobraflags.StringFlag{
		Name:  firstNameFlag,
		Value: "Admin",
		Usage: "First name",
	},
	lastNameFlag: &cobraflags.StringFlag{
		Name:  lastNameFlag,
		Value: "FEL",
		Usage: "Last name",
	},
}

func newCreateAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an active administrator, or promote an existing account",
		RunE:  createAdminCommand,
	}
	cobraflags.RegisterMap(cmd, adminFlags)
	return cmd
}

func createAdminCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	payload := auth.CompleteProfilePayload{
		FirstName: adminFlags[firstNameFlag].GetString(),
		LastName:  adminFlags[lastNameFlag].GetString(),
		Password:  adminFlags[passwordFlag].GetString(),
	}
	email := adminFlags[emailFlag].GetString()

	if err := (auth.LoginPayload{Email: email, Password: payload.Password}).Validate(); err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	d, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := persistence.Migrate(ctx, d.db); err != nil {
		return err
	}

	user, err := d.svc.Users.FindByEmail(ctx, email)
	switch {
	case err == nil:
	case auth.IsErrorCode(err, auth.TextCodeUserNotFound):
		if user, err = provisionAdmin(cmd, d, email, payload); err != nil {
			return err
		}
	default:
		return err
	}

	roles := append([]string{}, user.Roles...)
	if !user.HasRole(auth.RoleAdmin) {
		roles = append(roles, string(auth.RoleAdmin))
	}

	user, err = auth.NewUserAdmin(d.svc).AssignRoles(ctx, auth.ActorRef{Type: auth.ActorTypeSystem}, user.ID, &roles)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "admin %s ready (id %d, status %s)\n", user.Email, user.ID, user.Status)
	return nil
}

// provisionAdmin dispatches the regular account commands with the
// verification code kept in process instead of mailed.
func provisionAdmin(cmd *cobra.Command, d *deps, email string, payload auth.CompleteProfilePayload) (*auth.User, error) {
	ctx := cmd.Context()

	codes := &codeCatcher{}
	svc := d.svc
	svc.Mailer = codes

	// failures are returned by Dispatch, the runner stays quiet
	quiet := runner.WithErrorHandler(nil)
	subs := []dispatcher.Subscription{
		dispatcher.SubscribeCommand[auth.RegisterUserMessage](auth.NewRegisterUserHandler(svc), quiet),
		dispatcher.SubscribeCommand[auth.VerifyAccountMessage](auth.NewVerifyAccountHandler(svc), quiet),
		dispatcher.SubscribeCommand[auth.CompleteProfileMessage](auth.NewCompleteProfileHandler(svc), quiet),
	}
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	var registered *auth.RegisterUserResult
	err := dispatcher.Dispatch(ctx, auth.RegisterUserMessage{
		Email:      email,
		OnResponse: func(res *auth.RegisterUserResult) { registered = res },
	})
	if err != nil {
		return nil, err
	}

	err = dispatcher.Dispatch(ctx, auth.VerifyAccountMessage{
		Email: registered.User.Email,
		Code:  codes.code,
	})
	if err != nil {
		return nil, err
	}

	var user *auth.User
	err = dispatcher.Dispatch(ctx, auth.CompleteProfileMessage{
		UserID:                 registered.User.ID,
		CompleteProfilePayload: payload,
		OnResponse:             func(u *auth.User) { user = u },
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// codeCatcher keeps the verification code for the provisioning flow
type codeCatcher struct {
	code string
}

func (c *codeCatcher) SendVerificationEmail(_ context.Context, _ string, code string) error {
	c.code = code
	return nil
}

func (c *codeCatcher) SendWelcomeEmail(context.Context, string, string) error { return nil }
