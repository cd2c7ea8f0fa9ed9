package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"ananse-reader/internal/adapters/readerclient"
	"ananse-reader/internal/domain"
	"ananse-reader/internal/usecase/reading"
)

const usage = `usage: reader <command> [flags]

commands:
  toc                         list published chapters
  read <slug> [-page N] [-i]  print a page; -i pages interactively (enter: next, p: previous, q: quit)
  resume                      continue where you stopped
  like <slug|chapterId>       like or unlike a chapter
  bookmarks                   list your bookmarks
  prefs [-theme T] [-font N]  show or change display preferences (light|dark|sepia, 50-200)
`

type reader struct {
	api      *readerclient.Client
	prefs    *reading.PreferencesStore
	in       io.Reader
	out      io.Writer
	log      zerolog.Logger
	debounce time.Duration
}

func (r *reader) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(r.out, usage)
		return flag.ErrHelp
	}
	switch args[0] {
	case "toc":
		return r.toc(ctx)
	case "read":
		return r.read(ctx, args[1:])
	case "resume":
		return r.resume(ctx)
	case "like":
		return r.like(ctx, args[1:])
	case "bookmarks":
		return r.bookmarks(ctx)
	case "prefs":
		return r.preferences(args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(r.out, usage)
		return nil
	default:
		fmt.Fprint(r.out, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (r *reader) toc(ctx context.Context) error {
	list, err := r.api.ListChapters(ctx)
	if err != nil {
		return err
	}
	progress := map[string]domain.ReadingProgress{}
	if r.api.Authenticated() {
		rows, err := r.api.ListProgress(ctx)
		if err != nil {
			return err
		}
		for _, rp := range rows {
			progress[rp.ChapterID] = rp
		}
	}

	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTITLE\tSLUG\tREAD TIME\tPROGRESS")
	for _, c := range list {
		mark := ""
		if rp, ok := progress[c.ID]; ok {
			mark = fmt.Sprintf("%d%%", int(math.Round(rp.ScrollPosition*100)))
			if rp.Completed {
				mark = "done"
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d min\t%s\n", c.Order, c.Title, c.Slug, c.ReadTime, mark)
	}
	return tw.Flush()
}

func (r *reader) read(ctx context.Context, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return errors.New("read: chapter slug is required")
	}
	slug := args[0]
	fs := flag.NewFlagSet("read", flag.ContinueOnError)
	fs.SetOutput(r.out)
	page := fs.Int("page", 1, "page number, starting at 1")
	interactive := fs.Bool("i", false, "page interactively")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	return r.readFrom(ctx, slug, *page, *interactive)
}

func (r *reader) readFrom(ctx context.Context, slug string, page int, interactive bool) error {
	prefs := r.loadPreferences()
	reporter := reading.NewProgressReporter(r.api, r.api.Authenticated,
		reading.WithDebounce(r.debounce),
		reading.WithReporterLogger(r.log),
	)
	defer func() {
		if err := reporter.Close(context.WithoutCancel(ctx)); err != nil {
			fmt.Fprintf(r.out, "(progress not saved: %v)\n", err)
		}
	}()

	lines := bufio.NewScanner(r.in)
	for {
		p, err := r.api.ChapterPage(ctx, slug, page)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("chapter %q has no page %d", slug, page)
			}
			return err
		}
		render(r.out, p, prefs)
		reporter.Report(p.ChapterID, reading.PageFraction(p.Page, p.TotalPages))

		if p.Page == p.TotalPages {
			r.printNext(ctx, p.ChapterID)
		}
		if !interactive {
			return nil
		}

		fmt.Fprint(r.out, "[enter] next  [p] previous  [q] quit > ")
		if !lines.Scan() {
			return lines.Err()
		}
		switch strings.TrimSpace(strings.ToLower(lines.Text())) {
		case "q", "quit":
			return nil
		case "p", "prev":
			if page > 1 {
				page--
			}
		default:
			if p.Page == p.TotalPages {
				return nil
			}
			page++
		}
	}
}

func (r *reader) printNext(ctx context.Context, chapterID string) {
	list, err := r.api.ListChapters(ctx)
	if err != nil {
		r.log.Debug().Err(err).Msg("table of contents unavailable")
		return
	}
	prev, next := reading.Neighbors(list, chapterID)
	if prev != nil {
		fmt.Fprintf(r.out, "previous: %s (reader read %s)\n", prev.Title, prev.Slug)
	}
	if next != nil {
		fmt.Fprintf(r.out, "next: %s (reader read %s)\n", next.Title, next.Slug)
	}
}

func (r *reader) resume(ctx context.Context) error {
	if !r.api.Authenticated() {
		return errors.New("resume: sign in first (READER_TOKEN)")
	}
	last, err := r.api.LastProgress(ctx)
	if err != nil {
		return err
	}
	if last == nil {
		fmt.Fprintln(r.out, "Nothing read yet. Start with: reader toc")
		return nil
	}
	list, err := r.api.ListChapters(ctx)
	if err != nil {
		return err
	}
	var current *domain.Chapter
	for i := range list {
		if list[i].ID == last.ChapterID {
			current = &list[i]
			break
		}
	}
	if current == nil {
		return errors.New("resume: the last chapter you read is no longer published")
	}
	if last.Completed {
		if _, next := reading.Neighbors(list, current.ID); next != nil {
			fmt.Fprintf(r.out, "You finished %q. Continuing with %q.\n", current.Title, next.Title)
			return r.readFrom(ctx, next.Slug, 1, false)
		}
		fmt.Fprintf(r.out, "You finished %q, the latest chapter.\n", current.Title)
		return nil
	}

	first, err := r.api.ChapterPage(ctx, current.Slug, 1)
	if err != nil {
		return err
	}
	page := int(math.Ceil(last.ScrollPosition * float64(first.TotalPages)))
	if page < 1 {
		page = 1
	}
	return r.readFrom(ctx, current.Slug, page, false)
}

func (r *reader) like(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("like: chapter slug or id is required")
	}
	c, err := r.api.Chapter(ctx, args[0])
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c = domain.Chapter{ID: args[0], Title: args[0]}
	case err != nil:
		return err
	}
	state, err := r.api.ToggleLike(ctx, c.ID)
	if errors.Is(err, domain.ErrUnauthenticated) {
		return errors.New("like: sign in first (READER_TOKEN)")
	}
	if err != nil {
		return err
	}
	verb := "Unliked"
	if state.Liked {
		verb = "Liked"
	}
	fmt.Fprintf(r.out, "%s %q (%d like(s))\n", verb, c.Title, state.Count)
	return nil
}

func (r *reader) bookmarks(ctx context.Context) error {
	list, err := r.api.Bookmarks(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(r.out, "No bookmarks yet.")
		return nil
	}
	chapters, err := r.api.ListChapters(ctx)
	if err != nil {
		return err
	}
	titles := make(map[string]string, len(chapters))
	for _, c := range chapters {
		titles[c.ID] = c.Title
	}
	for _, b := range list {
		title := titles[b.ChapterID]
		if title == "" {
			title = b.ChapterID
		}
		fmt.Fprintf(r.out, "%s  %s, paragraph %d\n  %q\n", b.CreatedAt.Format("2006-01-02"), title, b.ParagraphIndex+1, b.TextSnippet)
		if b.Note != nil {
			fmt.Fprintf(r.out, "  note: %s\n", *b.Note)
		}
	}
	return nil
}

func (r *reader) preferences(args []string) error {
	fs := flag.NewFlagSet("prefs", flag.ContinueOnError)
	fs.SetOutput(r.out)
	theme := fs.String("theme", "", "light, dark or sepia")
	font := fs.Int("font", 0, "font size in percent, 50-200")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p := r.loadPreferences()
	if *theme == "" && *font == 0 {
		fmt.Fprintf(r.out, "theme: %s\nfont size: %d%%\n", p.Theme, p.FontSize)
		return nil
	}
	if *theme != "" {
		t, err := reading.ParseTheme(*theme)
		if err != nil {
			return err
		}
		p.Theme = t
	}
	if *font != 0 {
		p.FontSize = *font
	}
	if err := r.prefs.Save(p); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Saved: theme %s, font size %d%%\n", p.Theme, p.FontSize)
	return nil
}

func (r *reader) loadPreferences() reading.Preferences {
	p, err := r.prefs.Load()
	if err != nil {
		r.log.Warn().Err(err).Msg("preferences partially reset to defaults")
	}
	return p
}
