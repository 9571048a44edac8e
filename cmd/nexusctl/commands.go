package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"

	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/notify"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

// flushToasts prints the notifications raised by the stores.
func (c *cli) flushToasts() {
	for _, t := range c.viewer.Toasts.Drain() {
		mark := green("✓")
		if t.Variant == notify.Destructive {
			mark = red("✗")
		}
		if t.Description != "" {
			fmt.Fprintf(c.out, "%s %s: %s\n", mark, bold(t.Title), t.Description)
		} else {
			fmt.Fprintf(c.out, "%s %s\n", mark, bold(t.Title))
		}
	}
}

func (c *cli) identity() (model.Identity, error) {
	ident, ok := c.viewer.Session.Identity()
	if !ok {
		return model.Identity{}, errNotLoggedIn
	}
	return ident, nil
}

// fetch loads the collection; the stores report failures as toasts.
func (c *cli) fetch(ctx context.Context) ([]model.SavedImage, error) {
	if _, err := c.identity(); err != nil {
		return nil, err
	}
	if err := c.viewer.Images.Fetch(ctx); err != nil {
		return nil, err
	}
	return c.viewer.Images.Snapshot().Saved, nil
}

func signupCmd(c *cli) *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			meta := map[string]any{}
			if name != "" {
				meta[model.MetaFullName] = name
			}
			ident, err := c.viewer.Auth.SignUp(cmd.Context(), email, password, meta)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s account created for %s\n", green("✓"), ident.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (at least 6 characters)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "full name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func loginCmd(c *cli) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("NEXUS_PASSWORD")
			}
			sess, err := c.viewer.Auth.SignIn(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s signed in as %s\n", green("✓"), bold(sess.User.DisplayName()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (default $NEXUS_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func logoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out everywhere",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := c.identity(); err != nil {
				return err
			}
			if err := c.viewer.Session.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s signed out\n", green("✓"))
			return nil
		},
	}
}

func whoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ident, err := c.identity()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s %s\n", cyan("Name   "), ident.DisplayName())
			fmt.Fprintf(c.out, "%s %s\n", cyan("Email  "), ident.Email)
			fmt.Fprintf(c.out, "%s %s\n", cyan("ID     "), ident.ID)
			if url := ident.AvatarURL(); url != "" {
				fmt.Fprintf(c.out, "%s %s\n", cyan("Avatar "), url)
			}
			return nil
		},
	}
}

func uploadCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE...",
		Short: "Save images to your collection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.fetch(cmd.Context()); err != nil {
				return err
			}
			files := make([]model.FileInput, 0, len(args))
			for _, p := range args {
				data, err := os.ReadFile(p)
				if err != nil {
					return err
				}
				files = append(files, model.FileInput{Name: filepath.Base(p), Data: data})
			}
			c.viewer.Images.Stage(files)
			rep, err := c.viewer.Images.Save(cmd.Context())
			if err != nil {
				return err
			}
			for _, img := range rep.Succeeded {
				fmt.Fprintf(c.out, "%s %s %s\n", green("saved"), img.Name, faint(img.ID))
			}
			for _, img := range rep.Skipped {
				fmt.Fprintf(c.out, "%s %s\n", faint("skipped"), img.Name)
			}
			for _, f := range rep.Failed {
				fmt.Fprintf(c.out, "%s %s: %v\n", red("failed"), f.Image.Name, f.Err)
			}
			return nil
		},
	}
}

func listCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your saved images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			saved, err := c.fetch(cmd.Context())
			if err != nil {
				return err
			}
			if len(saved) == 0 {
				fmt.Fprintln(c.out, faint("your collection is empty"))
				return nil
			}
			for _, img := range saved {
				fmt.Fprintf(c.out, "%-40s %-24s %8d  %s\n", img.ID, img.Name, img.Size, faint(img.URL))
			}
			return nil
		},
	}
}

func rmCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Remove a saved image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.fetch(cmd.Context()); err != nil {
				return err
			}
			return c.viewer.Images.RemoveSaved(cmd.Context(), args[0])
		},
	}
}

func featureCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "feature ID",
		Short: "Showcase one of your images in Featured Styles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			saved, err := c.fetch(cmd.Context())
			if err != nil {
				return err
			}
			for _, img := range saved {
				if img.ID == args[0] {
					return c.viewer.Featured.Feature(cmd.Context(), img)
				}
			}
			return fmt.Errorf("no saved image %q", args[0])
		},
	}
}

func featuredCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "featured",
		Short: "Show Featured Styles with their scores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.viewer.Featured.Refresh(cmd.Context()); err != nil {
				return err
			}
			snap := c.viewer.Featured.Snapshot()
			if len(snap.Entries) == 0 {
				fmt.Fprintln(c.out, faint("no styles featured yet"))
				return nil
			}
			for _, e := range snap.Entries {
				mark := " "
				if snap.Voted(e.ID) {
					mark = green("♥")
				}
				fmt.Fprintf(c.out, "%s %4d  %-36s %s %s\n", mark, e.Score, e.ID, bold(e.DisplayName), faint(strings.TrimSpace(e.Description)))
			}
			return nil
		},
	}
}

func voteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "vote ENTRY_ID",
		Short: "Toggle your vote on a featured style",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.FromString(args[0])
			if err != nil {
				return fmt.Errorf("bad entry id: %w", err)
			}
			if err := c.viewer.Featured.Refresh(cmd.Context()); err != nil {
				return err
			}
			res, err := c.viewer.Featured.ToggleVote(cmd.Context(), id)
			if err != nil {
				return err
			}
			state := "removed"
			if res.Voted {
				state = "added"
			}
			fmt.Fprintf(c.out, "vote %s, score %d\n", state, res.Score)
			return nil
		},
	}
}
