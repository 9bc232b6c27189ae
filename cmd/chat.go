package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/samsaffron/localagent/internal/llm"
	"github.com/samsaffron/localagent/internal/session"
	"github.com/samsaffron/localagent/internal/tools"
)

var (
	chatGen       GenerationFlags
	chatTools     string
	chatResume    string
	chatNoSession bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the local agent",
	Long: `Chat with the local model. With a message argument, run one turn and exit;
otherwise read messages from stdin until EOF.

Examples:
  localagent chat
  localagent chat "what's the weather in Oslo?"
  localagent chat --tier compact --tools clock.now
  localagent chat --resume                # continue the current session
  localagent chat --resume=12             # continue session #12

Ctrl+C stops the reply in progress; Ctrl+D exits.`,
	RunE: runChat,
}

func init() {
	AddGenerationFlags(chatCmd, &chatGen)
	AddToolsFlag(chatCmd, &chatTools)
	chatCmd.Flags().StringVar(&chatResume, "resume", "", "Resume a session by number or ID prefix (default: current)")
	chatCmd.Flags().Lookup("resume").NoOptDefVal = "current"
	chatCmd.Flags().BoolVar(&chatNoSession, "no-session", false, "Do not save this conversation")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.ApplyOverrides(chatGen.Model, chatGen.Tier, tools.ParseToolsFlag(chatTools))
	if err := cfg.Validate(); err != nil {
		return err
	}

	rt, err := newAgentRuntime(ctx, cfg, !chatNoSession)
	if err != nil {
		return err
	}
	defer rt.Close()

	sess, history, err := rt.openSession(ctx, chatResume, cmd.Flags().Changed("tools"))
	if err != nil {
		return err
	}
	rt.enableDebugLog(sess.ID)

	recorder := session.NewRecorder(rt.store, sess)
	rt.engine.SetObserver(recorder)

	c := &chatSession{
		rt:       rt,
		recorder: recorder,
		history:  history,
		plan: llm.GenerationPlan{
			Tier:        cfg.Generation.Tier,
			ContextMood: chatGen.Mood,
			Overrides:   chatGen.Overrides(cmd),
		},
		out: newTurnPrinter(cmd.OutOrStdout()),
	}

	if len(args) > 0 {
		return c.turn(ctx, strings.Join(args, " "))
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		c.out.Banner(sess, rt.engine.Model(), rt.activeTools())
	}
	return c.loop(ctx, cmd.InOrStdin(), interactive)
}

// chatSession carries conversation state across turns.
type chatSession struct {
	rt       *agentRuntime
	recorder *session.Recorder
	history  []llm.Turn
	plan     llm.GenerationPlan
	out      *turnPrinter
}

func (c *chatSession) loop(ctx context.Context, in io.Reader, interactive bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if interactive {
			c.out.Prompt()
		}
		if !scanner.Scan() {
			if interactive {
				c.out.Newline()
			}
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/quit" || text == "/exit" {
			return nil
		}

		// Ctrl+C cancels only the turn in progress.
		turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		err := c.turn(turnCtx, text)
		stop()
		if err != nil {
			if llm.IsCancelled(err) {
				c.out.Cancelled()
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			c.out.Error(err)
			if !interactive {
				return err
			}
		}
	}
}

// turn runs one user turn, streaming output and recording it.
func (c *chatSession) turn(ctx context.Context, text string) error {
	if err := c.recorder.RecordUserTurn(ctx, text); err != nil {
		slog.Warn("failed to record user turn", "session", c.recorder.Session().ID, "error", err)
	}

	plan := c.plan
	plan.UserText = text
	plan.ActiveTools = c.rt.activeTools()

	stream, err := c.rt.engine.Stream(ctx, llm.TurnRequest{
		SessionID: c.recorder.Session().ID,
		Plan:      plan,
		History:   c.history,
	})
	if err != nil {
		c.recorder.Fail(ctx, err)
		return err
	}
	defer stream.Close()

	var result *llm.ModelResult
	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.recorder.Fail(ctx, err)
			var ce *llm.CancelledError
			if errors.As(err, &ce) && ce.Partial != "" {
				c.history = append(c.history, llm.UserTurn(text), llm.AssistantTurn(ce.Partial, nil))
			}
			c.out.EndReply()
			return err
		}
		switch ev.Type {
		case llm.EventTextDelta:
			c.out.Text(ev.Text)
		case llm.EventToolStart:
			c.out.ToolStart(ev.Call, ev.DisplayName)
		case llm.EventToolResult:
			c.out.ToolResult(ev.ToolEvent)
		case llm.EventDone:
			result = ev.Result
		}
	}
	c.out.EndReply()
	if result == nil {
		return fmt.Errorf("turn ended without a result")
	}

	if result.Mood != "" {
		c.plan.ContextMood = result.Mood
		if verbose {
			c.out.Mood(result.Mood)
		}
	}
	c.history = append(c.history, llm.UserTurn(text), llm.AssistantTurn(result.Reply, nil))
	return nil
}
