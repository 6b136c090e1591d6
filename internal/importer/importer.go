// Package importer loads questions and answers from markdown files, either in
// a local directory or in a git repository, into the forum.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fishy/errbatch"

	"github.com/conorfennell/qaforum/internal/digest"
	"github.com/conorfennell/qaforum/internal/domain"
	"github.com/conorfennell/qaforum/internal/forum"
	"github.com/conorfennell/qaforum/internal/gitsource"
	"github.com/conorfennell/qaforum/internal/parser"
)

// Report counts what a run did.
type Report struct {
	Files     int
	Questions int
	Answers   int
	Skipped   int
}

func (r *Report) add(o Report) {
	r.Files += o.Files
	r.Questions += o.Questions
	r.Answers += o.Answers
	r.Skipped += o.Skipped
}

// Importer posts parsed questions through the forum facade.
type Importer struct {
	forum    *forum.Forum
	author   string
	reposDir string
}

// New returns an Importer that credits posts without a By: line to author and
// clones git sources under reposDir.
func New(f *forum.Forum, author, reposDir string) *Importer {
	return &Importer{forum: f, author: author, reposDir: reposDir}
}

// Run imports every source in turn. Failures of one source do not stop the
// others, except when the store is unavailable.
func (im *Importer) Run(ctx context.Context, sources []string) (Report, error) {
	slog.Info("Starting import", "sources", len(sources))
	var total Report
	var batch errbatch.ErrBatch
	for _, source := range sources {
		r, err := im.ImportSource(ctx, source)
		total.add(r)
		if err != nil {
			slog.Error("Error importing source", "source", source, "error", err)
			batch.Add(err)
			if errors.Is(err, domain.ErrUnavailable) {
				break
			}
		}
	}
	slog.Info("Import complete",
		"files", total.Files,
		"questions", total.Questions,
		"answers", total.Answers,
		"skipped", total.Skipped,
	)
	return total, batch.Compile()
}

// ImportSource imports a local directory, or syncs and imports a git remote.
func (im *Importer) ImportSource(ctx context.Context, source string) (Report, error) {
	dir := source
	if gitsource.IsRemote(source) {
		localPath, err := gitsource.LocalPath(im.reposDir, source)
		if err != nil {
			return Report{}, err
		}
		if err := gitsource.Sync(ctx, source, localPath); err != nil {
			return Report{}, err
		}
		dir = localPath
	}
	return im.ImportDir(ctx, dir)
}

// ImportDir imports every .md file below dir. A question whose content is
// already on the forum is skipped along with its answers.
func (im *Importer) ImportDir(ctx context.Context, dir string) (Report, error) {
	existing, err := im.forum.Questions(ctx)
	if err != nil {
		return Report{}, err
	}
	seen := make(map[string][]string, len(existing))
	for _, q := range existing {
		h := digest.Hash(q.Content)
		seen[h] = append(seen[h], q.Content)
	}

	var report Report
	var batch errbatch.ErrBatch
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		questions, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			batch.Add(fmt.Errorf("parsing %s: %w", path, parseErr))
			return nil
		}
		report.Files++

		for _, q := range questions {
			h := digest.Hash(q.Content)
			if contains(seen[h], q.Content) {
				slog.Debug("Question already on the forum, skipping", "digest", h, "file", path)
				report.Skipped++
				continue
			}
			if err := im.post(ctx, q, &report); err != nil {
				if errors.Is(err, domain.ErrUnavailable) {
					return err
				}
				batch.Add(fmt.Errorf("importing %s: %w", path, err))
				continue
			}
			seen[h] = append(seen[h], q.Content)
		}
		return nil
	})
	if errors.Is(walkErr, domain.ErrUnavailable) {
		for _, err := range batch.GetErrors() {
			slog.Error("Error importing directory", "path", dir, "error", err)
		}
		return report, walkErr
	}
	if walkErr != nil {
		batch.Add(walkErr)
	}

	slog.Info("Directory imported",
		"path", dir,
		"files", report.Files,
		"questions", report.Questions,
		"answers", report.Answers,
		"skipped", report.Skipped,
	)
	return report, batch.Compile()
}

func (im *Importer) post(ctx context.Context, q domain.Question, report *Report) error {
	stored, err := im.forum.Ask(ctx, im.authorOf(q.Author), q.Content)
	if err != nil {
		return err
	}
	report.Questions++

	for _, a := range q.Answers {
		added, err := im.forum.Reply(ctx, stored.ID, im.authorOf(a.Author), a.Content)
		if err != nil {
			return err
		}
		if added == nil {
			return fmt.Errorf("question %d vanished while importing answers", stored.ID)
		}
		report.Answers++
	}
	return nil
}

func (im *Importer) authorOf(author string) string {
	if author == "" {
		return im.author
	}
	return author
}

func contains(contents []string, content string) bool {
	for _, c := range contents {
		if c == content {
			return true
		}
	}
	return false
}
