package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

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

	fmt.Println("=== Exam Room — Student ===")

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

	token, err := apiClient.Login(ctx, email, string(bytePassword), "student")
	if err != nil {
		fmt.Println("Login failed:", err)
		return
	}

	identity, err := api.IdentityFromToken(token)
	if err != nil {
		fmt.Println("Could not read identity from token:", err)
		return
	}
	fmt.Printf("Logged in as %s (%s)\n", identity.StudentID, identity.Matricule)

	// ─── Pick an Exam ──────────────────────────────────────────────────
	exams, err := apiClient.ListExams(ctx)
	if err != nil {
		fmt.Println("Could not load exams:", err)
		return
	}
	if len(exams) == 0 {
		fmt.Println("No exams available")
		return
	}
	for _, exam := range exams {
		fmt.Printf("  #%d  %s\n", exam.ID, exam.Title)
	}

	fmt.Print("Exam ID: ")
	rawID, _ := reader.ReadString('\n')
	examID, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
	if err != nil {
		fmt.Println("Error: invalid exam ID")
		return
	}

	// ─── Mount the View ────────────────────────────────────────────────
	ch := channel.Shared(cfg, log)
	notifier := notify.NewConsole(os.Stdout)

	studentView := view.NewStudent(apiClient, ch, notifier, log, os.Stdout, examID, *identity, cfg.HeartbeatInterval)
	if err := studentView.Mount(ctx); err != nil {
		fmt.Println("Mount failed:", err)
		return
	}
	defer studentView.Unmount()

	for _, r := range studentView.Resources() {
		fmt.Printf("  [%s] %s → %s\n", r.Kind, r.FileName, apiClient.ResolveURL(r.URL))
	}

	// ─── Command Loop ──────────────────────────────────────────────────
	fmt.Println("commands: file <path> | submit | quit")
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
		case "file":
			if len(fields) < 2 {
				fmt.Println("usage: file <path>")
				continue
			}
			studentView.SelectFile(fields[1])
			fmt.Println("selected", fields[1])
		case "submit":
			if err := studentView.Submit(ctx); err != nil {
				fmt.Println(err)
			}
		case "quit":
			return
		default:
			fmt.Println("commands: file <path> | submit | quit")
		}
	}
}
