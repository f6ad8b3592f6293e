package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"journal-keeper/internal/domain"
	"journal-keeper/internal/repository"
	"journal-keeper/internal/token"
)

const bearerPrefix = "Bearer "

// EntryFilter narrows ListEntries. Zero value returns everything.
type EntryFilter struct {
	// Query matches title, content and tags case-insensitively.
	Query string
	// Mood keeps only entries with exactly this mood.
	Mood string
}

// ExportFormat selects the ExportEntries rendering.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportText ExportFormat = "text"
)

// Export is a rendered journal download.
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
}

// EntryService guards journal entries behind bearer tokens.
type EntryService interface {
	VerifyBearer(authorization string) (token.Claims, error)
	SaveEntry(ctx context.Context, claims token.Claims, input domain.EntryInput) (*domain.Entry, error)
	ListEntries(ctx context.Context, claims token.Claims, filter EntryFilter) ([]domain.Entry, error)
	DeleteEntry(ctx context.Context, claims token.Claims, timestamp int64) error
	ExportEntries(ctx context.Context, claims token.Claims, format ExportFormat) (*Export, error)
}

type entryService struct {
	entries repository.EntryRepository
	tokens  *token.Codec
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewEntryService(entries repository.EntryRepository, tokens *token.Codec, logger logrus.FieldLogger) EntryService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &entryService{
		entries: entries,
		tokens:  tokens,
		logger:  logger,
		now:     time.Now,
	}
}

// VerifyBearer checks an Authorization header value. Every token failure maps
// to ErrUnauthorized; the precise reason is only logged.
func (s *entryService) VerifyBearer(authorization string) (token.Claims, error) {
	if !s.tokens.Configured() {
		return token.Claims{}, ErrServerMisconfigured
	}
	if !strings.HasPrefix(authorization, bearerPrefix) {
		return token.Claims{}, ErrUnauthorized
	}

	claims, err := s.tokens.Verify(strings.TrimSpace(authorization[len(bearerPrefix):]))
	if err != nil {
		s.logger.WithError(err).Debug("bearer token rejected")
		return token.Claims{}, ErrUnauthorized
	}
	if claims.Username == "" {
		s.logger.Debug("bearer token without username")
		return token.Claims{}, ErrUnauthorized
	}
	return claims, nil
}

func (s *entryService) SaveEntry(ctx context.Context, claims token.Claims, input domain.EntryInput) (*domain.Entry, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrContentRequired
	}

	tags := input.Tags
	if tags == nil {
		tags = []string{}
	}
	// Two saves within the same millisecond share a key; the later one wins.
	entry := domain.Entry{
		Title:     input.Title,
		Content:   content,
		Mood:      input.Mood,
		Tags:      tags,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.entries.Put(ctx, claims.Username, entry); err != nil {
		return nil, internalError("save entry", err)
	}
	return &entry, nil
}

func (s *entryService) ListEntries(ctx context.Context, claims token.Claims, filter EntryFilter) ([]domain.Entry, error) {
	entries, err := s.entries.List(ctx, claims.Username)
	if err != nil {
		return nil, internalError("list entries", err)
	}

	entries = filter.apply(entries)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})
	return entries, nil
}

func (f EntryFilter) apply(entries []domain.Entry) []domain.Entry {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	mood := strings.TrimSpace(f.Mood)
	if query == "" && mood == "" {
		return entries
	}

	filtered := make([]domain.Entry, 0, len(entries))
	for _, entry := range entries {
		if mood != "" && entry.Mood != mood {
			continue
		}
		if query != "" && !entryMatches(entry, query) {
			continue
		}
		filtered = append(filtered, entry)
	}
	return filtered
}

func entryMatches(entry domain.Entry, query string) bool {
	if strings.Contains(strings.ToLower(entry.Title), query) || strings.Contains(strings.ToLower(entry.Content), query) {
		return true
	}
	for _, tag := range entry.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}

func (s *entryService) DeleteEntry(ctx context.Context, claims token.Claims, timestamp int64) error {
	exists, err := s.entries.Exists(ctx, claims.Username, timestamp)
	if err != nil {
		return internalError("lookup entry", err)
	}
	if !exists {
		return ErrEntryNotFound
	}
	if err := s.entries.Delete(ctx, claims.Username, timestamp); err != nil {
		return internalError("delete entry", err)
	}
	return nil
}

// ParseExportFormat maps a query value to an ExportFormat; empty means JSON.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "json":
		return ExportJSON, nil
	case "text", "txt":
		return ExportText, nil
	default:
		return "", validationError("format must be json or text")
	}
}

type jsonExport struct {
	ExportDate   string         `json:"exportDate"`
	User         string         `json:"user"`
	TotalEntries int            `json:"totalEntries"`
	Entries      []domain.Entry `json:"entries"`
}

func (s *entryService) ExportEntries(ctx context.Context, claims token.Claims, format ExportFormat) (*Export, error) {
	entries, err := s.ListEntries(ctx, claims, EntryFilter{})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNothingToExport
	}

	exportedAt := s.now().UTC()
	base := "journal-export-" + exportedAt.Format("2006-01-02")

	switch format {
	case ExportText:
		return &Export{
			Filename:    base + ".txt",
			ContentType: "text/plain; charset=utf-8",
			Body:        []byte(renderTextExport(claims.Username, exportedAt, entries)),
		}, nil
	case ExportJSON:
		body, err := json.MarshalIndent(jsonExport{
			ExportDate:   exportedAt.Format(time.RFC3339Nano),
			User:         claims.Username,
			TotalEntries: len(entries),
			Entries:      entries,
		}, "", "  ")
		if err != nil {
			return nil, internalError("encode export", err)
		}
		return &Export{
			Filename:    base + ".json",
			ContentType: "application/json",
			Body:        body,
		}, nil
	default:
		return nil, internalError("export entries", errors.New("unsupported format "+string(format)))
	}
}

const exportTimeLayout = "Jan 2, 2006, 3:04:05 PM MST"

func renderTextExport(username string, exportedAt time.Time, entries []domain.Entry) string {
	var b strings.Builder
	b.WriteString("PRIVATE JOURNAL EXPORT\n")
	fmt.Fprintf(&b, "User: %s\n", username)
	fmt.Fprintf(&b, "Export Date: %s\n", exportedAt.Format(exportTimeLayout))
	fmt.Fprintf(&b, "Total Entries: %d\n", len(entries))
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	for i, entry := range entries {
		title := entry.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&b, "ENTRY %d\n", i+1)
		fmt.Fprintf(&b, "Title: %s\n", title)
		fmt.Fprintf(&b, "Date: %s\n", time.UnixMilli(entry.Timestamp).UTC().Format(exportTimeLayout))
		if entry.Mood != "" {
			fmt.Fprintf(&b, "Mood: %s\n", entry.Mood)
		}
		if len(entry.Tags) > 0 {
			fmt.Fprintf(&b, "Tags: %s\n", strings.Join(entry.Tags, ", "))
		}
		fmt.Fprintf(&b, "\n%s\n", entry.Content)
		b.WriteString(strings.Repeat("-", 30) + "\n\n")
	}
	return b.String()
}
