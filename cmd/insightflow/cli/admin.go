package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agiannakidis/insightflow/internal/model"
	"github.com/agiannakidis/insightflow/internal/service"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage user accounts",
		Long:  "Create and list the accounts that can log in to the dashboard.",
	}

	cmd.AddCommand(newAdminCreateCmd())
	cmd.AddCommand(newAdminListCmd())

	return cmd
}

// ---------- admin create ----------

func newAdminCreateCmd() *cobra.Command {
	var (
		username string
		email    string
		password string
		role     string
		dataDir  string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new account",
		Example: `  insightflow admin create --username ops --role admin
  insightflow admin create --username viewer1  # prompts for password, defaults to viewer`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminCreate(username, email, password, role, dataDir)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Login name (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")
	cmd.Flags().StringVar(&role, "role", model.RoleAdmin, "Role: admin or viewer")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory for the SQLite entity store (default: ~/.insightflow)")
	cmd.MarkFlagRequired("username")

	return cmd
}

func runAdminCreate(username, email, password, role, dataDir string) error {
	if !model.ValidRole(role) {
		return fmt.Errorf("invalid role %q: must be admin or viewer", role)
	}

	if password == "" {
		fmt.Print("Password: ")
		pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()
		password = string(pwBytes)

		fmt.Print("Confirm password: ")
		confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		fmt.Println()

		if password != string(confirmBytes) {
			return fmt.Errorf("passwords do not match")
		}
	}

	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	cfg := loadConfig()
	st, err := openStore(cfg, dataDir)
	if err != nil {
		return fmt.Errorf("open entity store: %w", err)
	}
	defer st.Close()

	hash, err := service.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := st.CreateUser(context.Background(), user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("Created %s account %q (id %d)\n", role, username, user.ID)
	return nil
}

// ---------- admin list ----------

func newAdminListCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminList(dataDir)
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory for the SQLite entity store (default: ~/.insightflow)")

	return cmd
}

func runAdminList(dataDir string) error {
	cfg := loadConfig()
	st, err := openStore(cfg, dataDir)
	if err != nil {
		return fmt.Errorf("open entity store: %w", err)
	}
	defer st.Close()

	users, err := st.ListUsers(context.Background())
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tROLE\tACTIVE\tLAST LOGIN")
	for _, u := range users {
		lastLogin := "never"
		if u.LastLoginAt != nil {
			lastLogin = u.LastLoginAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%s\n", u.ID, u.Username, u.Email, u.Role, u.IsActive, lastLogin)
	}
	return w.Flush()
}
