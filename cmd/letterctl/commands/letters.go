package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/zlnvch/letterbox/flow"
	"github.com/zlnvch/letterbox/models"
)

type conditionFlags struct {
	at           string
	in           time.Duration
	random       bool
	windowStart  string
	windowEnd    string
	inactiveDays int
}

// condition picks the delivery condition from the flags. With none set the
// letter arrives at a random moment between tomorrow and three years out.
func (f conditionFlags) condition(now time.Time) (models.DeliveryCondition, error) {
	random := f.random || f.windowStart != "" || f.windowEnd != ""

	set := 0
	for _, on := range []bool{f.at != "", f.in != 0, random, f.inactiveDays != 0} {
		if on {
			set++
		}
	}
	if set > 1 {
		return nil, errors.New("choose only one of --at, --in, --random/--window-*, --inactive-days")
	}

	switch {
	case f.at != "":
		at, err := time.Parse(time.RFC3339, f.at)
		if err != nil {
			return nil, fmt.Errorf("invalid --at: %w", err)
		}
		return models.FixedDate{At: at}, nil

	case f.in != 0:
		if f.in < 0 {
			return nil, errors.New("--in must be positive")
		}
		return models.FixedDate{At: now.Add(f.in)}, nil

	case f.inactiveDays != 0:
		return models.SenderInactivity{Days: f.inactiveDays}, nil
	}

	var window models.RandomWindow
	for _, bound := range []struct {
		flag  string
		value string
		dst   **time.Time
	}{
		{"--window-start", f.windowStart, &window.Start},
		{"--window-end", f.windowEnd, &window.End},
	} {
		if bound.value == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, bound.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", bound.flag, err)
		}
		*bound.dst = &t
	}
	return window, nil
}

func sendCmd() *cobra.Command {
	var (
		conditions conditionFlags
		files      []string
		ephemeral  bool
		resume     string
	)

	cmd := &cobra.Command{
		Use:   "send <identity> <message>",
		Short: "Seal and send a letter to a friend",
		Args:  cobra.ExactArgs(2),
		RunE: asMe(func(ctx context.Context, a *app, me models.Identity, args []string) error {
			condition, err := conditions.condition(time.Now())
			if err != nil {
				return err
			}

			attachments := make([][]byte, 0, len(files))
			for _, path := range files {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				attachments = append(attachments, data)
			}

			letter, err := a.sender.Send(ctx, me, flow.SendRequest{
				LetterId:    resume,
				RecipientId: args[0],
				Body:        []byte(args[1]),
				Attachments: attachments,
				Condition:   condition,
				Ephemeral:   ephemeral,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Letter %s is %s\n", letter.Id, letter.Status)
			if !letter.DeliverAt.IsZero() && letter.Status != models.LetterDelivered {
				fmt.Printf("Earliest delivery: %s\n", letter.DeliverAt.Format(time.RFC3339))
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&conditions.at, "at", "", "deliver at this RFC 3339 time")
	cmd.Flags().DurationVar(&conditions.in, "in", 0, "deliver after this duration")
	cmd.Flags().BoolVar(&conditions.random, "random", false, "deliver at a random time in the window")
	cmd.Flags().StringVar(&conditions.windowStart, "window-start", "", "random window start (default tomorrow)")
	cmd.Flags().StringVar(&conditions.windowEnd, "window-end", "", "random window end (default in three years)")
	cmd.Flags().IntVar(&conditions.inactiveDays, "inactive-days", 0, "deliver once you have been inactive this many days")
	cmd.Flags().StringArrayVar(&files, "file", nil, "attach a file (repeatable)")
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "delete the letter once it is opened")
	cmd.Flags().StringVar(&resume, "resume", "", "retry an interrupted send with its letter id")
	return cmd
}

func inboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inbox",
		Short: "List letters delivered to you",
		RunE: asMe(func(ctx context.Context, a *app, me models.Identity, args []string) error {
			letters, err := a.receiver.Inbox(ctx, me)
			if err != nil {
				return err
			}
			if len(letters) == 0 {
				fmt.Println("Nothing has arrived yet.")
				return nil
			}
			for _, l := range letters {
				fmt.Printf("%s  from %s  %s  %s\n", l.Id, l.SenderId, l.Status, l.DeliveredAt.Format(time.RFC3339))
			}
			return nil
		}),
	}
}

func openCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "open <letter>",
		Short: "Open a delivered letter",
		Args:  cobra.ExactArgs(1),
		RunE: asMe(func(ctx context.Context, a *app, me models.Identity, args []string) error {
			opened, err := a.receiver.Open(ctx, me, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("From: %s\n\n%s\n", opened.Letter.SenderId, opened.Body)

			for _, att := range opened.Attachments {
				path := filepath.Join(out, fmt.Sprintf("%s-attachment-%d", opened.Letter.Id, att.Index))
				if err := os.WriteFile(path, att.Data, 0o600); err != nil {
					return err
				}
				fmt.Printf("Saved attachment %d to %s\n", att.Index, path)
			}
			for _, dropped := range opened.Dropped {
				fmt.Fprintf(os.Stderr, "Could not recover attachment %d: %v\n", dropped.Index, dropped.Err)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&out, "out", ".", "directory for attachments")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <letter>",
		Short: "Delete a letter you received, or one you sent that is not yet delivered",
		Args:  cobra.ExactArgs(1),
		RunE: asMe(func(ctx context.Context, a *app, me models.Identity, args []string) error {
			if err := a.svc.DeleteLetter(ctx, me, args[0]); err != nil {
				return err
			}
			fmt.Println("Deleted.")
			return nil
		}),
	}
}
