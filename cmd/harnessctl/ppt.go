package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/cklxx/NanoBee/internal/core/ports"
	"github.com/cklxx/NanoBee/internal/core/services"
	"github.com/cklxx/NanoBee/internal/domain"
	"github.com/cklxx/NanoBee/internal/infrastructure/kvstore"
	"github.com/cklxx/NanoBee/pkg/utils/keygen"
	"github.com/urfave/cli/v3"
)

const (
	topicFlag  = "topic"
	limitFlag  = "limit"
	sourceFlag = "source"
	modelFlag  = "model"
)

// newPPTCmd returns the command that groups the slide-deck workflow commands.
func newPPTCmd() *cli.Command {
	return &cli.Command{
		Name:  "ppt",
		Usage: "slide-deck workflow",
		Commands: []*cli.Command{
			{
				Name:  "outline",
				Usage: "search references for a topic and stream an outline",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: topicFlag, Usage: "deck topic", Required: true},
					&cli.IntFlag{Name: limitFlag, Usage: "number of references to search for", Value: 6},
					&cli.StringFlag{Name: sourceFlag, Usage: "hint for where to search"},
					&cli.StringFlag{Name: modelFlag, Usage: "text model for the outline (backend default if empty)"},
				},
				Action: pptOutline,
			},
		},
	}
}

// pptOutline runs search then outline-stream on a throwaway project and
// prints each stream event as it arrives.
func pptOutline(ctx context.Context, cmd *cli.Command) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}

	// The project lives only for this run; an ephemeral secret keeps the
	// model settings intact in memory.
	secret, err := keygen.GenerateSecret(32)
	if err != nil {
		return err
	}
	projects, err := services.NewProjectService(services.ProjectServiceConfig{
		Store:     kvstore.NewMemory(),
		Logger:    e.log,
		SecretKey: secret,
	})
	if err != nil {
		return err
	}
	defer projects.Close(context.Background())

	svc := services.NewPPTService(services.PPTServiceConfig{Harness: e.client, Projects: projects, Logger: e.log})

	input := ports.CreateProjectInput{Topic: cmd.String(topicFlag)}
	if m := cmd.String(modelFlag); m != "" {
		input.TextModel = &domain.ModelConfig{Model: m}
	}
	p, err := projects.Create(ctx, input)
	if err != nil {
		return err
	}

	p, err = svc.RunStage(ctx, p.ID, domain.StageSearch, ports.StageOptions{
		Limit:      int(cmd.Int(limitFlag)),
		SourceHint: cmd.String(sourceFlag),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%d references\n", len(p.References))
	for _, r := range p.References {
		fmt.Fprintf(e.out, "  - %s (%s)\n", r.Title, r.URL)
	}

	p, err = svc.RunStage(ctx, p.ID, domain.StageOutlineStream, ports.StageOptions{
		OnEvent: func(ev domain.OutlineEvent) { printOutlineEvent(e, ev) },
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(e.out, "\noutline:")
	for i, s := range p.Outline {
		fmt.Fprintf(e.out, "%d. %s\n", i+1, s.Title)
		for _, b := range s.Bullets {
			fmt.Fprintf(e.out, "   - %s\n", b)
		}
	}
	return nil
}

func printOutlineEvent(e *env, ev domain.OutlineEvent) {
	switch ev.Type {
	case domain.OutlineEventProgress:
		fmt.Fprintf(e.out, "[round %d/%d] %s\n", ev.Round, ev.TotalRounds, ev.Message)
	case domain.OutlineEventPartial:
		titles := make([]string, 0, len(ev.Sections))
		for _, s := range ev.Sections {
			titles = append(titles, s.Title)
		}
		fmt.Fprintf(e.out, "[round %d] +%s\n", ev.Round, strings.Join(titles, ", "))
	case domain.OutlineEventError:
		fmt.Fprintf(e.out, "[error] %s\n", ev.Error)
	default:
		fmt.Fprintf(e.out, "[%s] %d sections\n", ev.Type, len(ev.Outline))
	}
}
