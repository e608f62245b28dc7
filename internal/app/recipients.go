package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"ombudsman_deadline_notifier/internal/domain/directory"
)

// ErrNoRecipient means not even the default address is usable.
var ErrNoRecipient = errors.New("no valid recipient address for department")

// Resolution is the outcome of a recipient lookup.
type Resolution struct {
	Addresses   []string
	Source      string // directory:exact, directory:substring, static:tokens, default...
	MatchedName string
}

// RecipientResolver turns a department name into delivery addresses:
// directory exact match, directory fuzzy match, static table, default.
type RecipientResolver struct {
	directory directory.Repository
	static    *directory.StaticTable
	fallback  []string
	logger    logrus.FieldLogger
}

func NewRecipientResolver(dir directory.Repository, static *directory.StaticTable, defaultRecipient string, logger logrus.FieldLogger) *RecipientResolver {
	return &RecipientResolver{
		directory: dir,
		static:    static,
		fallback:  directory.SplitAddresses(defaultRecipient),
		logger:    logger,
	}
}

// Resolve returns a non-empty address list or an error. Directory read
// failures are returned as-is; they are not papered over with the default.
func (r *RecipientResolver) Resolve(ctx context.Context, department string) (Resolution, error) {
	name := strings.TrimSpace(department)
	log := r.logger.WithField("department", name)

	if name != "" && r.directory != nil {
		entry, err := r.directory.FindByName(ctx, name)
		switch {
		case err == nil:
			if addrs := entry.Addresses(); len(addrs) > 0 {
				return Resolution{Addresses: addrs, Source: "directory:exact", MatchedName: entry.Name}, nil
			}
		case !errors.Is(err, directory.ErrEntryNotFound):
			return Resolution{}, fmt.Errorf("directory lookup for %q: %w", name, err)
		}

		entries, err := r.directory.List(ctx)
		if err != nil {
			return Resolution{}, fmt.Errorf("directory scan for %q: %w", name, err)
		}
		if entry, kind := directory.Match(entries, name); entry != nil {
			log.WithFields(logrus.Fields{"matched": entry.Name, "match": kind}).Debug("Department resolved by fuzzy directory match")
			return Resolution{Addresses: entry.Addresses(), Source: "directory:" + string(kind), MatchedName: entry.Name}, nil
		}
	}

	if entry, kind := r.static.Lookup(name); entry != nil {
		return Resolution{Addresses: entry.Addresses(), Source: "static:" + string(kind), MatchedName: entry.Name}, nil
	}

	if len(r.fallback) == 0 {
		return Resolution{}, fmt.Errorf("%w: %q", ErrNoRecipient, name)
	}
	log.Info("No directory entry for department, using default recipient")
	return Resolution{Addresses: append([]string(nil), r.fallback...), Source: "default"}, nil
}
