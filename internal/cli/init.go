package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AjCodes/FocusUp-sub000/internal/config"
	"github.com/AjCodes/FocusUp-sub000/internal/keyring"
	"github.com/AjCodes/FocusUp-sub000/internal/remote/postgres"
)

type InitCmd struct {
	Remote bool `help:"Also create or migrate the remote PostgreSQL schema."`
}

func (c *InitCmd) Run(ctx *Context) error {
	// Open already created and migrated the cache
	ctx.PerformAutomaticBackup()
	if err := config.Save(ctx.ConfigPath, ctx.Config); err != nil {
		return err
	}
	fmt.Printf("Initialized focusup cache at: %s\n", ctx.Cache.Path())
	fmt.Printf("Configuration written to: %s\n", ctx.ConfigPath)

	if !c.Remote {
		return nil
	}
	connStr, source := ctx.Config.Connection(ctx.getenv, keyring.GetConnectionString)
	if connStr == "" {
		return errors.New("no remote connection string: set one with 'focusup keyring set' or " + config.EnvConnection)
	}
	if err := postgres.ValidateConnString(connStr); err != nil && !(source == config.SourceKeyring && errors.Is(err, postgres.ErrEmbeddedCredentials)) {
		return err
	}

	store := postgres.New(connStr)
	if err := store.Init(); err != nil {
		return fmt.Errorf("failed to initialize remote store: %w", err)
	}
	defer store.Close()
	fmt.Printf("Initialized remote store (connection from %s)\n", source)
	return nil
}

type KeyringCmd struct {
	Set    KeyringSetCmd    `cmd:"" help:"Store the remote connection string in the OS keyring."`
	Get    KeyringGetCmd    `cmd:"" help:"Show the stored connection string with the password masked."`
	Delete KeyringDeleteCmd `cmd:"" help:"Remove the stored connection string."`
	Status KeyringStatusCmd `cmd:"" help:"Check OS keyring availability."`
}

type KeyringSetCmd struct {
	ConnectionString string `arg:"" help:"PostgreSQL connection string."`
}

func (cmd *KeyringSetCmd) Run(ctx *Context) error {
	if err := postgres.ValidateConnString(cmd.ConnectionString); err != nil {
		if !errors.Is(err, postgres.ErrEmbeddedCredentials) {
			return fmt.Errorf("invalid connection string: %w", err)
		}
		// The keyring is encrypted storage, so an embedded password is acceptable here
		fmt.Println("⚠️  Connection string contains embedded credentials; storing it in the encrypted OS keyring.")
	}
	if err := keyring.SetConnectionString(cmd.ConnectionString); err != nil {
		return err
	}
	fmt.Println("✓ Connection string stored in OS keyring")
	return nil
}

type KeyringGetCmd struct{}

func (cmd *KeyringGetCmd) Run(ctx *Context) error {
	connStr, err := keyring.GetConnectionString()
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return errors.New("no connection string found in keyring. Use 'focusup keyring set' to store one")
		}
		return err
	}
	fmt.Println(maskPassword(connStr))
	return nil
}

type KeyringDeleteCmd struct{}

func (cmd *KeyringDeleteCmd) Run(ctx *Context) error {
	if err := keyring.DeleteConnectionString(); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return errors.New("no connection string found in keyring")
		}
		return err
	}
	fmt.Println("✓ Connection string deleted from OS keyring")
	return nil
}

type KeyringStatusCmd struct{}

func (cmd *KeyringStatusCmd) Run(ctx *Context) error {
	if !keyring.IsAvailable() {
		fmt.Println("❌ OS keyring is not available on this system")
		return keyring.ErrKeyringUnavailable
	}
	fmt.Println("✓ OS keyring is available")
	if _, err := keyring.GetConnectionString(); err == nil {
		fmt.Println("✓ Connection string is stored in keyring")
	} else {
		fmt.Println("ℹ No connection string stored in keyring")
	}
	return nil
}

// maskPassword hides the password of a URI or key=value connection string.
func maskPassword(connStr string) string {
	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		idx := strings.Index(connStr, "://")
		rest := connStr[idx+3:]
		at := strings.LastIndex(rest, "@")
		if at == -1 {
			return connStr
		}
		userInfo := rest[:at]
		if colon := strings.Index(userInfo, ":"); colon != -1 {
			return connStr[:idx+3] + userInfo[:colon] + ":****" + rest[at:]
		}
		return connStr
	}

	fields := strings.Fields(connStr)
	for i, f := range fields {
		if k, _, ok := strings.Cut(f, "="); ok && strings.EqualFold(k, "password") {
			fields[i] = k + "=****"
		}
	}
	return strings.Join(fields, " ")
}
