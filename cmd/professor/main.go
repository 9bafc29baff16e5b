package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/edusync/examroom-client/internal/api"
	"github.com/edusync/examroom-client/internal/channel"
	"github.com/edusync/examroom-client/internal/config"
	"github.com/edusync/examroom-client/internal/logger"
	"github.com/edusync/examroom-client/internal/notify"
	"github.com/edusync/examroom-client/internal/view"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)
	apiClient := api.New(cfg.APIBaseURL, log)

	fmt.Println("=== Exam Room — Proctoring ===")

	// ─── Login ─────────────────────────────────────────────────────────
	fmt.Print("Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Error: email is required")
		return
	}

	fmt.Print("Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return
	}

	if _, err := apiClient.Login(ctx, email, string(bytePassword), "professor"); err != nil {
		fmt.Println("Login failed:", err)
		return
	}

	// ─── Pick an Exam ──────────────────────────────────────────────────
	exams, err := apiClient.ListExams(ctx)
	if err != nil {
		fmt.Println("Could not load exams:", err)
		return
	}
	for _, exam := range exams {
		fmt.Printf("  #%d  %s\n", exam.ID, exam.Title)
	}

	fmt.Print("Exam ID to watch: ")
	rawID, _ := reader.ReadString('\n')
	examID, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
	if err != nil {
		fmt.Println("Error: invalid exam ID")
		return
	}

	// ─── Mount the View ────────────────────────────────────────────────
	ch := channel.Shared(cfg, log)
	notifier := notify.NewConsole(os.Stdout)

	professorView := view.NewProfessor(ch, notifier, log, os.Stdout, examID)
	if err := professorView.Mount(); err != nil {
		fmt.Println("Mount failed:", err)
		return
	}
	defer professorView.Unmount()

	// ─── Command Loop ──────────────────────────────────────────────────
	fmt.Println("commands: start <minutes> | stop | roster | quit")
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "start":
			minutes := 90
			if len(fields) > 1 {
				if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
					minutes = n
				}
			}
			if err := professorView.StartSession(minutes); err == nil {
				fmt.Printf("start requested (%d min)\n", minutes)
			}
		case "stop":
			if err := professorView.StopSession(); err == nil {
				fmt.Println("stop requested")
			}
		case "roster":
			professorView.RenderOnce(time.Now())
		case "quit":
			return
		default:
			fmt.Println("commands: start <minutes> | stop | roster | quit")
		}
	}
}
