package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"anniv-certificate-service/internal/domain"
	"anniv-certificate-service/internal/i18n"
	"anniv-certificate-service/internal/infra/memory"
	"anniv-certificate-service/internal/wizard"

	"github.com/spf13/cobra"
)

var errQuit = errors.New("quit")

// NewPlayCmd walks through the visitor wizard in the terminal.
func NewPlayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Take the anniversary quiz in the terminal and download the certificate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, v, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			target, err := domain.ParseTargetDate(cfg.Certificate.TargetDate)
			if err != nil {
				return fmt.Errorf("certificate: %w", err)
			}
			window, err := domain.ParseJoinWindow(cfg.Certificate.MinJoinDate, cfg.Certificate.MaxJoinDate)
			if err != nil {
				return err
			}

			var certOut io.Writer = cmd.OutOrStdout()
			if path := v.GetString("output"); path != "" && path != "-" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				certOut = f
			}

			p := newPlayer(cmd.InOrStdin(), cmd.OutOrStdout(), certOut, cfg.Server.Lang)
			opts := []wizard.Option{
				wizard.WithTranslator(p.tr),
				wizard.WithJoinWindow(window),
				wizard.WithTargetDate(target),
				wizard.WithIssueDelay(v.GetDuration("issue-delay")),
				wizard.WithDemoCertificates(cfg.Client.DemoFallback || v.GetBool("demo")),
				wizard.WithOnChange(p.onChange),
			}
			if v.GetBool("offline-quiz") {
				opts = append(opts, wizard.WithFallbackQuiz(memory.DefaultQuiz()))
			}
			p.w = wizard.New(newClient(cfg), opts...)
			defer p.w.Close()

			err = p.run(cmd.Context())
			if errors.Is(err, errQuit) {
				return nil
			}
			return err
		},
	}
	f := cmd.Flags()
	f.String("api", "", "API base URL (overrides client.base_url)")
	f.String("lang", "", "message language (zh, en)")
	f.Bool("demo", false, "fabricate a demo certificate when issuance fails")
	f.Bool("offline-quiz", false, "use the built-in quiz when the API is unreachable")
	f.Duration("issue-delay", wizard.DefaultIssueDelay, "delay before the certificate is requested")
	f.StringP("output", "o", "-", "certificate output file (- for stdout)")
	return cmd
}

// player drives a wizard from line-based terminal input.
type player struct {
	w       *wizard.Wizard
	tr      i18n.Translator
	in      *bufio.Scanner
	certOut io.Writer

	mu  sync.Mutex
	out io.Writer
}

func newPlayer(in io.Reader, out, certOut io.Writer, lang string) *player {
	return &player{tr: i18n.NewTranslator(lang), in: bufio.NewScanner(in), out: out, certOut: certOut}
}

func (p *player) say(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *player) read() (string, bool) {
	if !p.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.in.Text()), true
}

func (p *player) ask(labelID string) (string, error) {
	p.say("%s", p.tr.Td("PlayPrompt", map[string]any{"Label": p.tr.T(labelID)}))
	line, ok := p.read()
	if !ok || line == "quit" {
		return "", errQuit
	}
	return line, nil
}

// onChange prints answer hints as they appear.
func (p *player) onChange(v wizard.View) {
	if h, ok := v.Status.(wizard.ShowingHint); ok {
		p.say("  %s", p.tr.Td("PlayHint", map[string]any{"Text": h.Hint.Text}))
		p.w.DismissHint()
	}
}

// resume reports whether the flow can continue after err. Input errors are
// shown and retried; network failures ask the user first.
func (p *player) resume(err error) bool {
	var inputErr *wizard.InputError
	if errors.As(err, &inputErr) {
		p.say("  ✗ %s", inputErr.Message)
		return true
	}
	if errors.Is(err, wizard.ErrStale) || errors.Is(err, wizard.ErrBusy) {
		return true
	}
	f, ok := p.w.View().Status.(wizard.Failed)
	if !ok || !f.Retryable {
		return false
	}
	p.say("  ✗ %s", p.tr.Td("PlayRetryPrompt", map[string]any{"Message": f.Message}))
	line, ok := p.read()
	return ok && strings.EqualFold(line, "r")
}

func (p *player) run(ctx context.Context) error {
	p.say("%s", p.tr.T("PlayTitle"))
	p.say("%s", p.tr.T("PlayIntro"))
	if _, ok := p.read(); !ok {
		return errQuit
	}

	err := p.w.Explore(ctx)
	for err != nil {
		if !p.resume(err) {
			return err
		}
		err = p.w.LoadQuiz(ctx)
	}

	if err := p.quiz(ctx); err != nil {
		return err
	}
	if err := p.wishes(ctx); err != nil {
		return err
	}
	if err := p.form(); err != nil {
		return err
	}
	return p.await(ctx)
}

func (p *player) quiz(ctx context.Context) error {
	for {
		v := p.w.View()
		if v.Step != wizard.StepQuiz {
			return nil
		}
		q := *v.Question
		p.say("")
		p.say("[%d/%d] %s", v.Index+1, v.Total, q.Content)
		if q.IsTextInput() {
			p.say("  %s", p.tr.T("PlayTextAnswer"))
		} else {
			for _, opt := range q.Options {
				marker := " "
				if opt.ID == v.Selected {
					marker = "*"
				}
				p.say(" %s %s. %s", marker, opt.Label(), opt.Content)
			}
		}

		line, ok := p.read()
		if !ok || line == "quit" {
			return errQuit
		}
		if line == "back" {
			if err := p.w.Previous(); err != nil {
				p.say("  %s", p.tr.T("PlayFirstQuestion"))
			}
			continue
		}

		switch {
		case line == "" && (v.Selected != 0 || strings.TrimSpace(v.Text) != ""):
			// keep the current answer
		case q.IsTextInput():
			_ = p.w.EnterText(q.ID, line)
		default:
			opt, ok := pickOption(q, line)
			if !ok {
				p.say("  %s", p.tr.T("PlayPickOption"))
				continue
			}
			if err := p.w.SelectOption(q.ID, opt.ID); err != nil {
				return err
			}
		}

		if err := p.w.Next(ctx); err != nil && !p.resume(err) {
			return err
		}
	}
}

// pickOption accepts an option letter (A, b) or its 1-based position.
func pickOption(q domain.Question, input string) (domain.Option, bool) {
	for _, opt := range q.Options {
		if strings.EqualFold(opt.Label(), input) {
			return opt, true
		}
	}
	if n, err := strconv.Atoi(input); err == nil {
		for _, opt := range q.Options {
			if opt.IdxNo == n {
				return opt, true
			}
		}
	}
	return domain.Option{}, false
}

func (p *player) wishes(ctx context.Context) error {
	for {
		p.say("")
		line, err := p.ask("PlayWishes")
		if err != nil {
			return err
		}
		if line != "" || p.w.View().Applicant.Wishes == "" {
			if err := p.w.SetWishes(line); err != nil {
				return err
			}
		}
		err = p.w.Complete(ctx)
		if err == nil {
			return nil
		}
		if !p.resume(err) {
			return err
		}
	}
}

func (p *player) form() error {
	for {
		name, err := p.ask("PlayName")
		if err != nil {
			return err
		}
		employeeID, err := p.ask("PlayEmployeeID")
		if err != nil {
			return err
		}
		joinDate, err := p.ask("PlayJoinDate")
		if err != nil {
			return err
		}
		if err := p.w.SetApplicant(name, employeeID, joinDate); err != nil {
			return err
		}
		err = p.w.SubmitForm()
		if err == nil {
			return nil
		}
		if !p.resume(err) {
			return err
		}
	}
}

func (p *player) await(ctx context.Context) error {
	if v := p.w.View(); v.PlaceholderDays != nil {
		p.say("")
		p.say("%s", p.tr.Td("PlayGenerating", map[string]any{"Days": *v.PlaceholderDays}))
	}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		v := p.w.View()
		if v.Step == wizard.StepResult {
			break
		}
		if f, ok := v.Status.(wizard.Failed); ok && f.Action == wizard.ActionIssue {
			if !p.resume(f.Err) {
				return f.Err
			}
			if err := p.w.RetryIssue(ctx); err != nil {
				slog.Debug("certificate retry failed", "error", err)
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	v := p.w.View()
	if v.Demo {
		p.say("%s", p.tr.T("PlayDemoNote"))
	} else {
		p.say("%s", p.tr.Td("PlayIssued", map[string]any{"Message": v.IssueMessage}))
	}
	return p.w.Download(p.certOut)
}
