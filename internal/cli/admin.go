package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iliyamo/task-manager/internal/handler"
	"github.com/iliyamo/task-manager/internal/queue"
	"github.com/iliyamo/task-manager/internal/service"
	"github.com/iliyamo/task-manager/internal/storage"
)

var (
	adminName     string
	adminEmail    string
	adminPassword string
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin account",
	Long: `Create an active account with the admin role.

The password is read from --password or, when omitted, from TASKCTL_ADMIN_PASSWORD.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		backend, err := storage.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		password := adminPassword
		if password == "" {
			password = os.Getenv("TASKCTL_ADMIN_PASSWORD")
		}
		auth := service.NewAuthService(backend.Users, nil, queue.NopPublisher{}, cfg.BcryptCost)
		return runCreateAdmin(cmd.Context(), auth, adminName, adminEmail, password, cmd.OutOrStdout())
	},
}

func init() {
	createAdminCmd.Flags().StringVar(&adminName, "name", "Administrator", "display name")
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "login email (required)")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "password (defaults to $TASKCTL_ADMIN_PASSWORD)")
	_ = createAdminCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(createAdminCmd)
}

type adminInput struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,strongpassword"`
}

// runCreateAdmin applies the registration rules to the input and creates
// the account.
func runCreateAdmin(ctx context.Context, auth *service.AuthService, name, email, password string, w io.Writer) error {
	in := adminInput{
		Name:     strings.TrimSpace(name),
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Password: password,
	}
	if err := handler.NewValidator().Validate(&in); err != nil {
		return err
	}
	u, err := auth.CreateAdmin(ctx, service.RegisterInput{Name: in.Name, Email: in.Email, Password: in.Password})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "created admin %s <%s>\n", u.ID, u.Email)
	return nil
}
