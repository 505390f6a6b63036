package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo/attendance/core/catchup"
	"github.com/trezcool/masomo/attendance/core/clock"
	attendancesvc "github.com/trezcool/masomo/attendance/services/attendance"
)

const scriptHelp = "media[:SEC], play, pause, seek:SEC, wait:SEC, ack[:PROMPT], quiz:Q=OPT;Q=OPT, finalize"

var replayStart = time.Date(2026, time.January, 1, 8, 0, 0, 0, time.UTC)

type step struct {
	op  string
	arg string
}

func (s step) String() string {
	if s.arg == "" {
		return s.op
	}
	return s.op + ":" + s.arg
}

// parseScript reads steps like "media:300,play,wait:60,ack,wait:240".
func parseScript(script string) ([]step, error) {
	var steps []step
	for _, raw := range strings.Split(script, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		op, arg, _ := strings.Cut(raw, ":")
		s := step{op: op, arg: arg}
		switch op {
		case "play", "pause", "finalize":
			if arg != "" {
				return nil, errors.Errorf("step %q takes no argument", raw)
			}
		case "media":
			if arg != "" {
				if _, err := strconv.ParseFloat(arg, 64); err != nil {
					return nil, errors.Errorf("step %q: duration must be a number", raw)
				}
			}
		case "seek", "wait":
			if _, err := strconv.ParseFloat(arg, 64); err != nil {
				return nil, errors.Errorf("step %q: seconds must be a number", raw)
			}
		case "ack":
		case "quiz":
			if _, err := parseAnswers(arg); err != nil {
				return nil, errors.Wrapf(err, "step %q", raw)
			}
		default:
			return nil, errors.Errorf("unknown step %q (want %s)", raw, scriptHelp)
		}
		steps = append(steps, s)
	}
	if len(steps) == 0 {
		return nil, errors.New("empty script")
	}
	return steps, nil
}

func parseAnswers(arg string) ([]catchup.QuizAnswer, error) {
	var answers []catchup.QuizAnswer
	for _, pair := range strings.Split(arg, ";") {
		if pair == "" {
			continue
		}
		q, opt, ok := strings.Cut(pair, "=")
		n, err := strconv.Atoi(opt)
		if !ok || q == "" || err != nil {
			return nil, errors.Errorf("answer %q must be of form QUESTION=OPTION", pair)
		}
		answers = append(answers, catchup.QuizAnswer{QuestionID: q, Option: n})
	}
	return answers, nil
}

// printer is an EventPublisher writing one line per notification.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) Publish(_ context.Context, n catchup.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := fmt.Sprintf("[%4.0fs] %-20s state=%-13s pos=%.0f verified=%.0f",
		n.At.Sub(replayStart).Seconds(), n.Kind, n.State, n.PositionSec, n.VerifiedSec)
	if n.From != "" {
		line += " from=" + string(n.From)
	}
	if n.PromptID != "" {
		line += " prompt=" + n.PromptID
	}
	if n.Quiz != nil {
		line += fmt.Sprintf(" passed=%t score=%.0f", n.Quiz.Passed, n.Quiz.ScorePct)
	}
	if n.Decision != nil {
		line += fmt.Sprintf(" credited=%t", n.Decision.Credited)
	}
	if n.Error != "" {
		line += " error=" + strconv.Quote(n.Error)
	}
	_, err := fmt.Fprintln(p.out, line)
	return err
}

// replay drives a session against the console attendance service on a simulated clock.
// Step errors are printed and do not stop the replay.
func (cli *commandLine) replay(catalogPath, lessonID string, viewer catchup.Viewer, steps []step) error {
	cat, err := attendancesvc.LoadCatalog(catalogPath)
	if err != nil {
		return err
	}
	attendance := attendancesvc.NewConsoleService(cat, cli.logger)
	fake := clock.NewFake(replayStart)
	svc := catchup.NewService(catchup.Deps{
		Conf:       cli.conf.Catchup,
		Clock:      fake,
		Attendance: attendance,
		Publisher:  &printer{out: cli.out},
		Logger:     cli.logger,
		Validate:   cli.validate,
		Translator: cli.translator,
	})
	defer svc.Shutdown()

	ctx := context.Background()
	sess, err := svc.Start(ctx, viewer, lessonID)
	if err != nil {
		return errors.Wrap(err, "starting session")
	}

	for _, s := range steps {
		if err := runStep(ctx, sess, fake, s); err != nil {
			fmt.Fprintf(cli.out, "       %s: %v\n", s, err)
		}
	}

	snap := sess.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding snapshot")
	}
	fmt.Fprintln(cli.out, string(data))
	fmt.Fprintf(cli.out, "attested watch time: %.0fs\n", attendance.Watched(viewer.ID, lessonID))
	return nil
}

func runStep(ctx context.Context, sess *catchup.Session, fake *clock.Fake, s step) error {
	seconds := func() float64 {
		f, _ := strconv.ParseFloat(s.arg, 64)
		return f
	}

	switch s.op {
	case "media":
		return sess.Tick(catchup.MediaReady{DurationSec: seconds()})
	case "play":
		return sess.Tick(catchup.Play{})
	case "pause":
		return sess.Tick(catchup.Pause{})
	case "seek":
		return sess.Tick(catchup.Seek{PositionSec: seconds()})
	case "wait":
		fake.Advance(time.Duration(seconds() * float64(time.Second)))
		return nil
	case "ack":
		promptID := s.arg
		if promptID == "" {
			active := sess.Snapshot().ActivePrompt
			if active == nil {
				return catchup.ErrPromptNotActive
			}
			promptID = active.ID
		}
		return sess.AckPrompt(ctx, promptID)
	case "quiz":
		answers, _ := parseAnswers(s.arg)
		_, err := sess.SubmitQuiz(ctx, answers)
		return err
	case "finalize":
		_, err := sess.RetryFinalize(ctx)
		return err
	}
	return errors.Errorf("unknown step %q", s)
}
