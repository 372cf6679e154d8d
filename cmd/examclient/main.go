// examclient is a terminal front end for the exam-session engine. It drives
// one attempt against a backend: prints lifecycle events, shows the current
// question and accepts simple commands on stdin.
//
// Usage:
//
//	examclient <session_id> [assignment_id]
//
// Commands: a <n> (answer option n), t <text> (free text), f (flag),
// g <n> (go to question n), n (next section), m <text> (message proctor),
// r (ready), s (submit), q (quit).
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/prova-engine/internal/backend/httpapi"
	"github.com/stemsi/prova-engine/internal/config"
	"github.com/stemsi/prova-engine/internal/exam"
	"github.com/stemsi/prova-engine/internal/logger"
	"github.com/stemsi/prova-engine/internal/model"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: examclient <session_id> [assignment_id]")
		os.Exit(2)
	}
	sessionID, err := uuid.Parse(os.Args[1])
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid session id")
	}
	var assignmentID *uuid.UUID
	if len(os.Args) > 2 {
		id, err := uuid.Parse(os.Args[2])
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid assignment id")
		}
		assignmentID = &id
	}

	client := httpapi.New(cfg.BackendBaseURL, cfg.BackendToken, cfg.BackendTimeout, log)
	ctrl := exam.NewController(client, log, cfg.EngineOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go consumeEvents(ctrl)

	if err := ctrl.Start(ctx, sessionID, assignmentID); err != nil {
		log.Fatal().Err(err).Msg("Could not start attempt")
	}

	commandLoop(ctx, ctrl, log)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	ctrl.Close(closeCtx)
}

func consumeEvents(ctrl *exam.Controller) {
	for ev := range ctrl.Events() {
		switch ev.Type {
		case exam.EventStateChanged:
			fmt.Printf("\n[state] %s\n", ev.State)
		case exam.EventRoomStateChanged:
			fmt.Printf("\n[room] %s %s\n", ev.RoomState, ev.Reason)
		case exam.EventSectionAdvanced:
			fmt.Printf("\n[section] now in section %d\n", ev.Section+1)
		case exam.EventUnreadMessages:
			fmt.Printf("\n[messages] %d unread\n", ev.Unread)
		case exam.EventReconnecting:
			if ev.Reconnecting {
				fmt.Println("\n[network] reconnecting...")
			} else {
				fmt.Println("\n[network] connection restored")
			}
		case exam.EventSubmitFailed:
			fmt.Printf("\n[submit] failed: %v — you may retry\n", ev.Err)
		case exam.EventKicked:
			fmt.Printf("\n[room] removed by proctor: %s\n", ev.Reason)
		}
	}
}

func commandLoop(ctx context.Context, ctrl *exam.Controller, log zerolog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		printQuestion(ctrl)
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")

		switch cmd {
		case "q":
			return
		case "a":
			answerOption(ctrl, arg)
		case "t":
			if q := currentQuestion(ctrl); q != nil {
				ctrl.SetText(q.ID, arg)
			}
		case "f":
			if q := currentQuestion(ctrl); q != nil {
				ctrl.ToggleFlag(q.ID)
			}
		case "g":
			n, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Println("usage: g <question number>")
				continue
			}
			if err := ctrl.GoToQuestion(n - 1); err != nil {
				fmt.Println(err)
			}
		case "n":
			fmt.Print("conclude this section? it cannot be reopened [y/N] ")
			if scanner.Scan() && strings.EqualFold(strings.TrimSpace(scanner.Text()), "y") {
				if err := ctrl.AdvanceSection(); err != nil && err != exam.ErrSubmitted {
					fmt.Println(err)
				}
			}
		case "r":
			if room := ctrl.Room(); room != nil {
				if err := room.SetReady(ctx); err != nil {
					fmt.Println(err)
				}
			}
		case "m":
			if room := ctrl.Room(); room != nil {
				room.Send(ctx, arg)
			}
		case "s":
			fmt.Print("submit and finish? [y/N] ")
			if scanner.Scan() && strings.EqualFold(strings.TrimSpace(scanner.Text()), "y") {
				if err := ctrl.RequestSubmit(ctx); err != nil && err != exam.ErrSubmitted {
					log.Error().Err(err).Msg("Submit failed")
				} else {
					return
				}
			}
		default:
			fmt.Println("commands: a <n>, t <text>, f, g <n>, n, m <text>, r, s, q")
		}
	}
}

func currentQuestion(ctrl *exam.Controller) *model.Question {
	session := ctrl.Session()
	if session == nil {
		return nil
	}
	idx := ctrl.CurrentQuestion()
	if idx < 0 || idx >= len(session.Questions) {
		return nil
	}
	return &session.Questions[idx]
}

func answerOption(ctrl *exam.Controller, arg string) {
	q := currentQuestion(ctrl)
	if q == nil {
		return
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(q.Options) {
		fmt.Println("usage: a <option number>")
		return
	}
	ctrl.Select(q.ID, q.Options[n-1].ID)
}

func printQuestion(ctrl *exam.Controller) {
	if ctrl.State() != exam.StateInProgress {
		return
	}
	q := currentQuestion(ctrl)
	if q == nil {
		return
	}
	global, section := ctrl.Remaining()
	fmt.Printf("\n─── Question %d", ctrl.CurrentQuestion()+1)
	if global > 0 {
		fmt.Printf(" │ %s left", (time.Duration(global) * time.Second).String())
	}
	if section > 0 {
		fmt.Printf(" │ section: %s left", (time.Duration(section) * time.Second).String())
	}
	fmt.Printf(" ───\n%s\n", q.Prompt)
	for i, opt := range q.Options {
		fmt.Printf("  %d) %s\n", i+1, opt.Text)
	}
	if a, ok := ctrl.Answers().Get(q.ID); ok && a.Answered() {
		fmt.Println("  (answered)")
	}
}
