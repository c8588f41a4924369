package cli

import (
	"context"
	"fmt"

	"github.com/AjCodes/FocusUp-sub000/internal/identity"
)

type SignInCmd struct {
	UserID string `arg:"" help:"Account id to sign in as."`
}

func (c *SignInCmd) Run(ctx *Context) error {
	before, err := ctx.Identity.Current()
	if err != nil {
		return err
	}
	if err := ctx.Identity.SignIn(context.Background(), c.UserID); err != nil {
		return fmt.Errorf("sign-in failed; guest data kept: %w", err)
	}
	if before.Guest {
		fmt.Printf("%s Signed in as %s; guest progress moved to your account\n", okStyle.Render("✓"), c.UserID)
		return nil
	}
	fmt.Printf("%s Signed in as %s\n", okStyle.Render("✓"), c.UserID)
	return nil
}

type SignOutCmd struct{}

func (c *SignOutCmd) Run(ctx *Context) error {
	if err := ctx.Identity.SignOut(); err != nil {
		return err
	}
	id, err := ctx.Identity.Current()
	if err != nil {
		return err
	}
	fmt.Printf("Signed out. Now using guest identity %s\n", id.UserID)
	return nil
}

type WhoamiCmd struct{}

func (c *WhoamiCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	kind := "account"
	if identity.IsGuestID(owner) {
		kind = "guest"
	}
	fmt.Printf("%s (%s)\n", owner, kind)
	return nil
}
