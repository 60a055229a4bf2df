package admin

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/depmsg/internal/app"
	"github.com/dmitrijs2005/depmsg/internal/backend"
	"github.com/dmitrijs2005/depmsg/internal/models"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func (c *command) messagesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Read and write messages through the configured backends",
	}
	cmd.AddCommand(
		c.messagesListCommand(),
		c.messagesFilesCommand(),
		c.messagesPostCommand(),
		c.messagesStatusCommand(),
	)
	return cmd
}

// withBackend runs fn with a backend handle selected from the loaded
// configuration.
func (c *command) withBackend(cmd *cobra.Command, fn func(ctx context.Context, h *backend.Handle) error) error {
	return c.withApp(cmd, func(ctx context.Context, a *app.App) (err error) {
		h, err := a.Backend()
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, h.Close())
		}()
		return fn(ctx, h)
	})
}

func (c *command) messagesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list DEPOSITION_ID",
		Short: "List the messages of a deposition, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withBackend(cmd, func(ctx context.Context, h *backend.Handle) error {
				msgs, err := h.ListMessagesForDeposition(ctx, args[0])
				if err != nil {
					return err
				}
				for _, m := range msgs {
					fmt.Fprintf(c.out, "%s  %s  %-24s %-8s %s\n", models.FormatTimestamp(m.Timestamp),
						m.MessageID, m.ContentType, m.Sender, m.Subject)
				}
				fmt.Fprintf(c.out, "%s messages (read from %s)\n", count(len(msgs)), h.Config().ReadTarget)
				return nil
			})
		},
	}
}

func (c *command) messagesFilesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "files DEPOSITION_ID MESSAGE_ID",
		Short: "List the file references attached to a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withBackend(cmd, func(ctx context.Context, h *backend.Handle) error {
				refs, err := h.GetFileReferences(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				for _, f := range refs {
					fmt.Fprintf(c.out, "%s  %s  P%d V%d  %s\n", f.ContentType, f.ContentFormat,
						f.PartitionNumber, f.VersionID, f.OriginalFilename)
				}
				return nil
			})
		},
	}
}

// parseAttachment reads CONTENT_TYPE:FORMAT[:PARTITION[:VERSION[:FILENAME]]].
func parseAttachment(s string) (models.FileReference, error) {
	parts := strings.SplitN(s, ":", 5)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return models.FileReference{}, fmt.Errorf("attachment %q: want CONTENT_TYPE:FORMAT[:PARTITION[:VERSION[:FILENAME]]]", s)
	}
	f := models.FileReference{ContentType: parts[0], ContentFormat: parts[1], PartitionNumber: 1, VersionID: 1}
	for i, dst := range []*int{&f.PartitionNumber, &f.VersionID} {
		if len(parts) <= i+2 {
			break
		}
		n, err := strconv.Atoi(parts[i+2])
		if err != nil {
			return models.FileReference{}, fmt.Errorf("attachment %q: %w", s, err)
		}
		*dst = n
	}
	if len(parts) == 5 {
		f.OriginalFilename = parts[4]
	}
	return f, nil
}

func (c *command) messagesPostCommand() *cobra.Command {
	var (
		msg         models.Message
		contentType string
		attachments []string
	)

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Create a message on every write target",
		Long: `Create a message with its attachment references on every configured write
target. The message id, timestamp and thread parent are assigned when not
given.

Example:
  msgadmin messages post --deposition D_1000000001 --sender annotator \
    --subject "Validation report" --body "Please review." \
    --attach validation-report:pdf:1:1:report.pdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ct, err := models.ParseContentType(contentType)
			if err != nil {
				return err
			}
			rec := &models.Record{Message: msg}
			rec.Message.ContentType = ct
			for _, s := range attachments {
				f, err := parseAttachment(s)
				if err != nil {
					return err
				}
				rec.Files = append(rec.Files, f)
			}

			return c.withBackend(cmd, func(ctx context.Context, h *backend.Handle) error {
				res, err := h.CreateMessage(ctx, rec)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Created message %s in %s\n", rec.Message.MessageID, joinTargetList(res.Succeeded))
				if res.Partial != nil {
					fmt.Fprintf(c.out, "Warning: %v\n", res.Partial)
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&msg.DepositionID, "deposition", "", "deposition id")
	f.StringVar(&msg.MessageID, "message-id", "", "message id, generated when empty")
	f.StringVar(&msg.ParentMessageID, "parent", "", "parent message id for replies")
	f.StringVar(&msg.Sender, "sender", "", "sender")
	f.StringVar(&msg.Subject, "subject", "", "subject")
	f.StringVar(&msg.Body, "body", "", "message text")
	f.StringVar(&msg.ContextType, "context-type", "", "context type")
	f.StringVar(&msg.ContextValue, "context-value", "", "context value")
	f.StringVar(&msg.MessageType, "message-type", "", "message type, text when empty")
	f.BoolVar(&msg.SendStatus, "send", true, "mark the message as sent")
	f.StringVar(&contentType, "content-type", string(models.ContentToDepositor), "messages-to-depositor, messages-from-depositor or notes-from-annotator")
	f.StringArrayVar(&attachments, "attach", nil, "attachment CONTENT_TYPE:FORMAT[:PARTITION[:VERSION[:FILENAME]]] (repeatable)")
	_ = cmd.MarkFlagRequired("deposition")
	return cmd
}

func (c *command) messagesStatusCommand() *cobra.Command {
	var st models.MessageStatus

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Set the read, action-required and release flags of a message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withBackend(cmd, func(ctx context.Context, h *backend.Handle) error {
				res, err := h.UpdateStatus(ctx, &st)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Updated status of %s in %s\n", st.MessageID, joinTargetList(res.Succeeded))
				if res.Partial != nil {
					fmt.Fprintf(c.out, "Warning: %v\n", res.Partial)
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&st.DepositionID, "deposition", "", "deposition id, required when message files are written")
	f.StringVar(&st.MessageID, "message-id", "", "message id")
	f.BoolVar(&st.ReadStatus, "read", false, "message has been read")
	f.BoolVar(&st.ActionRequired, "action-required", false, "message needs action")
	f.BoolVar(&st.ForRelease, "for-release", false, "message is marked for release")
	_ = cmd.MarkFlagRequired("message-id")
	return cmd
}

func joinTargetList(ts []backend.Target) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
