// Command readerctl is the operator tool: schema migration, admin promotion,
// profile listing and chapter import.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"ananse-reader/internal/app"
	"ananse-reader/internal/domain"
	"ananse-reader/internal/infra/config"
	applog "ananse-reader/internal/infra/log"
	"ananse-reader/internal/usecase/chapters"
	"ananse-reader/internal/usecase/profiles"
)

const usage = `usage: readerctl <command> [flags]

commands:
  migrate          apply the database schema
  make-admin       grant the admin role: -uid UID [-name NAME]
  profiles         list profiles
  import-chapter   insert or update a chapter by slug from a markdown file:
                   -file PATH -slug SLUG -title TITLE -order N [-status draft|published] [-excerpt TEXT] [-read-time MIN]
`

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.Fatal().Err(err).Msg("readerctl: command failed")
	}
}

func run(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return flag.ErrHelp
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "migrate", "make-admin", "profiles", "import-chapter":
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}

	store, closeStore, err := app.OpenStore(ctx, cfg, applog.Component(logger, "storage"))
	if err != nil {
		return err
	}
	defer closeStore()

	switch cmd {
	case "migrate":
		fmt.Fprintf(out, "Schema is up to date (%s)\n", cfg.DBDriver)
		return nil
	case "make-admin":
		return makeAdmin(ctx, profiles.NewService(store, store, logger), rest, out)
	case "profiles":
		return listProfiles(ctx, profiles.NewService(store, store, logger), out)
	default:
		chapterCache, closeCache := app.NewCache(ctx, cfg, applog.Component(logger, "cache"))
		defer closeCache()
		svc := chapters.NewService(store,
			chapters.WithCache(chapterCache, cfg.Cache.TTL),
			chapters.WithBusinessMetrics(store),
			chapters.WithLogger(logger),
		)
		if err := importChapter(ctx, svc, rest, out); err != nil {
			return err
		}
		if cfg.Cache.RedisAddr == "" {
			logger.Warn().Msg("REDIS_ADDR is not set: only this process's cache was invalidated")
			fmt.Fprintf(out, "Note: REDIS_ADDR is not set, a running API may serve the previous version for up to %s\n", cfg.Cache.TTL)
		}
		return nil
	}
}

func makeAdmin(ctx context.Context, svc *profiles.Service, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("make-admin", flag.ContinueOnError)
	fs.SetOutput(out)
	uid := fs.String("uid", "", "identity provider user id")
	name := fs.String("name", "", "display name to set when the profile is created")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *uid == "" {
		return errors.New("make-admin: -uid is required")
	}
	var displayName *string
	if *name != "" {
		displayName = name
	}
	p, err := svc.Promote(ctx, *uid, displayName)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Profile %s is now %s\n", p.UserID, p.Role)
	return nil
}

func listProfiles(ctx context.Context, svc *profiles.Service, out io.Writer) error {
	list, err := svc.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER ID\tROLE\tDISPLAY NAME\tCREATED")
	for _, p := range list {
		name := "-"
		if p.DisplayName != nil {
			name = *p.DisplayName
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.UserID, p.Role, name, p.CreatedAt.Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d profile(s)\n", len(list))
	return nil
}

func importChapter(ctx context.Context, svc *chapters.Service, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("import-chapter", flag.ContinueOnError)
	fs.SetOutput(out)
	var (
		file     = fs.String("file", "", "markdown file with the chapter content")
		slug     = fs.String("slug", "", "chapter slug")
		title    = fs.String("title", "", "chapter title")
		order    = fs.Int("order", -1, "position in the table of contents")
		status   = fs.String("status", string(domain.ChapterStatusPublished), "draft or published")
		excerpt  = fs.String("excerpt", "", "short teaser")
		readTime = fs.Int("read-time", 0, "minutes; estimated from the word count when 0")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" || *slug == "" || *title == "" || *order < 0 {
		return errors.New("import-chapter: -file, -slug, -title and -order are required")
	}
	st, err := domain.ParseChapterStatus(*status)
	if err != nil {
		return fmt.Errorf("import-chapter: %w", err)
	}
	content, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("import-chapter: read %s: %w", *file, err)
	}

	in := domain.ChapterInput{
		Slug:     *slug,
		Title:    *title,
		Content:  strings.TrimSpace(string(content)),
		Order:    *order,
		Status:   st,
		ReadTime: *readTime,
	}
	if *excerpt != "" {
		in.Excerpt = excerpt
	}
	c, inserted, err := svc.Import(ctx, in)
	if err != nil {
		return err
	}
	action := "Updated"
	if inserted {
		action = "Inserted"
	}
	fmt.Fprintf(out, "%s chapter %q (%s, %s, %d min read, %d bytes)\n", action, c.Slug, c.ID, c.Status, c.ReadTime, len(c.Content))
	return nil
}
