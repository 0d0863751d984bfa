// migrate.go rebuilds per-word rows from stored JSON words. Versions that
// predate row materialization, or were saved with the empty-words sentinel,
// get naive tokens synthesized from their text.

package transcript

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jpl-au/scribe/internal/log"
	"github.com/jpl-au/scribe/internal/store"
	"github.com/jpl-au/scribe/internal/validate"
)

// MigrateWords rewrites per-word rows for one version of doc, or for every
// version when version is nil. The progress callback, when non-nil, is
// invoked after each version. Returns how many versions were migrated.
func (s *Service) MigrateWords(ctx context.Context, doc string, version *int, progress func(done, total int)) (int, error) {
	doc, err := validate.Doc(doc)
	if err != nil {
		return 0, err
	}

	var versions []int
	if version != nil {
		if _, err := s.store.Get(ctx, doc, *version); err == nil {
			versions = []int{*version}
		}
	} else {
		history, err := s.store.History(ctx, doc)
		if err != nil {
			return 0, err
		}
		for _, h := range history {
			versions = append(versions, h.Version)
		}
	}

	migrated := 0
	err = s.store.Tx(ctx, func(tx *sql.Tx) error {
		for _, v := range versions {
			row, err := s.store.Get(ctx, doc, v)
			if err != nil {
				return err
			}
			words := row.Words
			if len(words) == 0 {
				words = synthesizeWords(row.Text)
			}
			if err := s.store.ReplaceWordRows(ctx, tx, doc, v, words); err != nil {
				return err
			}
			migrated++
			if progress != nil {
				progress(migrated, len(versions))
			}
		}
		return nil
	})

	log.Event("cli:migrate-words", "migrate").
		Doc(doc).
		Detail("versions", migrated).
		Write(err)
	if err != nil {
		return 0, err
	}
	return migrated, nil
}

// synthesizeWords builds a bare token list from text: whitespace-split words
// per line, a newline token closing each line, no timings.
func synthesizeWords(text string) []store.Token {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	var words []store.Token
	for _, line := range lines {
		for _, part := range strings.Fields(line) {
			words = append(words, store.Token{Word: part})
		}
		words = append(words, store.Token{Word: "\n"})
	}
	return words
}
