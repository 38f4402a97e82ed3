package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/ragdesk/internal/models"
	"github.com/xhad/ragdesk/pkg/rag"
)

func getProgressBar(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// ingest submits one job per argument and follows each to completion.
func (a *App) ingest(ctx context.Context, scope string, sources []string) error {
	if len(sources) == 0 {
		return fmt.Errorf("ingest needs at least one file or URL")
	}

	color.Blue("\nIngesting %d source(s) into scope %q\n", len(sources), scope)

	failed := 0
	for _, src := range sources {
		var rec models.TaskRecord
		var err error
		if isURL(src) {
			rec, err = a.svc.SubmitFetch(ctx, scope, src)
		} else {
			var content []byte
			content, err = os.ReadFile(src)
			if err == nil {
				rec, err = a.svc.SubmitUpload(ctx, scope, filepath.Base(src), content)
			}
		}
		if err != nil {
			color.Red("✗ %s: %v\n", src, err)
			failed++
			continue
		}

		final := a.follow(ctx, rec.ID, src)
		switch final.Status {
		case models.TaskCompleted:
			color.Green("✓ %s: %v chunks from %v documents\n", src,
				final.Result["total_chunks"], final.Result["total_documents"])
		default:
			color.Red("✗ %s: %s %s\n", src, final.Status, final.Error)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(sources))
	}
	return nil
}

// follow renders a task's progress until it finishes and returns its last
// snapshot.
func (a *App) follow(ctx context.Context, id, label string) models.TaskRecord {
	bar := getProgressBar(label)
	var last models.TaskRecord
	for snap := range a.engine.Watch(ctx, id, 100*time.Millisecond) {
		last = snap
		bar.Describe(color.BlueString("%s: %s", label, snap.Message))
		_ = bar.Set(snap.Progress)
	}
	_ = bar.Finish()
	fmt.Println()
	return last
}

// ask indexes the scope, then answers questions from stdin until "exit".
func (a *App) ask(ctx context.Context, scope string) error {
	rec, err := a.svc.SubmitReindex(ctx, scope)
	if err != nil {
		return err
	}
	if final := a.follow(ctx, rec.ID, "Indexing"); final.Status != models.TaskCompleted {
		return fmt.Errorf("indexing %s: %s", final.Status, final.Error)
	}

	color.Cyan("\nChat with the %q documents (type 'exit' to quit)", scope)

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()
	sourcePrompt := color.New(color.FgHiBlack).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		if strings.ToLower(question) == "exit" {
			break
		}
		if question == "" {
			continue
		}

		spinner := getSpinner(" Thinking...")
		msg, err := a.svc.Chat(ctx, scope, rag.AskRequest{Question: question})
		_ = spinner.Finish()
		fmt.Print("\r")

		if err != nil {
			color.Red("Error: %v\n", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		assistantPrompt("\nAssistant: %s\n", msg.Answer)
		if len(msg.Sources) > 0 {
			sourcePrompt("Sources: %s\n", strings.Join(msg.Sources, ", "))
		}
	}

	return nil
}
