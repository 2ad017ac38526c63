package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/calebrin/tutorcore/internal/config"
	"github.com/calebrin/tutorcore/internal/core"
	"github.com/calebrin/tutorcore/internal/service/tutor"
	"github.com/calebrin/tutorcore/pkg/conv"
	"github.com/calebrin/tutorcore/pkg/log"
	"github.com/chzyer/readline"
)

type ReadLine struct {
	cfg   *config.AppConfig
	tutor *tutor.Tutor
	rl    *readline.Instance
}

func NewReadLine(t *tutor.Tutor, cfg *config.AppConfig) (*ReadLine, error) {
	// Ensure runtime directory exists
	if err := os.MkdirAll(cfg.RuntimePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		HistoryFile:     filepath.Join(cfg.RuntimePath, "input_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}

	return &ReadLine{
		cfg:   cfg,
		tutor: t,
		rl:    rl,
	}, nil
}

func (r *ReadLine) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Msg("Tutor chat started. Type 'exit' to quit, '/welcome' for a greeting.")

	for {
		// Check context before blocking read
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := r.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if len(line) == 0 {
					return nil // Exit on Ctrl+C
				}
				continue
			} else if err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "exit" {
			return nil
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			r.handleCommand(ctx, line)
			continue
		}

		reply, err := r.tutor.Respond(ctx, r.cfg.CLIStudentID, line)
		if err != nil {
			logger.Error().Err(err).Msg("respond failed")
			fmt.Fprintf(r.rl.Stdout(), "%s\n", core.UserMessage(err))
			continue
		}
		r.render(reply)
	}
}

func (r *ReadLine) handleCommand(ctx context.Context, line string) {
	fields := strings.Fields(line)
	out := r.rl.Stdout()

	switch fields[0] {
	case "/welcome":
		greeting, err := r.tutor.Welcome(ctx, r.cfg.CLIStudentID)
		if err != nil {
			fmt.Fprintf(out, "%s\n", core.UserMessage(err))
			return
		}
		fmt.Fprintf(out, "%s\n", conv.MarkdownToText(greeting))

	case "/memory":
		reply, err := r.tutor.Respond(ctx, r.cfg.CLIStudentID, "What do you remember about our sessions?")
		if err != nil {
			fmt.Fprintf(out, "%s\n", core.UserMessage(err))
			return
		}
		r.render(reply)

	case "/grade":
		if len(fields) != 3 {
			fmt.Fprintln(out, "usage: /grade <subject> <score 0..1>")
			return
		}
		subject, err := core.ParseSubject(fields[1])
		if err != nil {
			fmt.Fprintf(out, "unknown subject %q\n", fields[1])
			return
		}
		score, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			fmt.Fprintf(out, "bad score %q\n", fields[2])
			return
		}
		estimate, err := r.tutor.RecordQuizOutcome(ctx, r.cfg.CLIStudentID, subject, score)
		if err != nil {
			fmt.Fprintf(out, "%s\n", core.UserMessage(err))
			return
		}
		fmt.Fprintf(out, "Recorded. Your %s level is now %.0f%%.\n", subject, estimate*100)

	default:
		fmt.Fprintf(out, "unknown command %s (try /welcome, /memory, /grade)\n", fields[0])
	}
}

func (r *ReadLine) render(reply *tutor.Reply) {
	out := r.rl.Stdout()

	if reply.Text != "" {
		fmt.Fprintf(out, "%s\n", conv.MarkdownToText(reply.Text))
	}

	for i, item := range reply.QuizItems {
		fmt.Fprintf(out, "\nQ%d. %s\n", i+1, item.Question)
		for j, choice := range item.Choices {
			fmt.Fprintf(out, "  %c) %s\n", 'a'+j, choice)
		}
	}
	if len(reply.QuizItems) > 0 {
		fmt.Fprintf(out, "\nWhen you're done, record your score with /grade %s <score>.\n", reply.Subject)
	}

	if len(reply.Citations) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for i, c := range reply.Citations {
			fmt.Fprintf(out, "  [%d] %s <%s>\n", i+1, c.Title, c.URL)
		}
	}
}

func (r *ReadLine) Shutdown(ctx context.Context) error {
	if r.rl != nil {
		return r.rl.Close()
	}
	return nil
}
