package swarm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/reza/hivemind/pkg/backend"
)

// collectorRoundBudget gives the research collector more tool rounds than a
// regular swarm worker; one round of research is many fetch/append cycles.
const collectorRoundBudget = 25

// indexExcerptLen bounds the per-round excerpt in the master index.
const indexExcerptLen = 500

var collectorRole = Role{
	Name:  "collector",
	Focus: "raw data collection: fetch sources, extract facts, persist everything verbatim to disk",
}

var (
	nextRe      = regexp.MustCompile(`(?i)NEXT:\s*(.+)`)
	thinkRe     = regexp.MustCompile(`(?is)<think>.*?</think>`)
	thinkTagRe  = regexp.MustCompile(`(?i)</?think>`)
	slugStripRe = regexp.MustCompile(`[^\w\s-]`)
	slugSpaceRe = regexp.MustCompile(`\s+`)
)

// researchRound records one completed loop iteration for the master index.
type researchRound struct {
	index       int
	subtopic    string
	catalogPath string
	rawPath     string
	excerpt     string
}

// RunResearch drives the autonomous research loop: each round one collector
// agent gathers raw material into the output directory, a tool-free catalog
// call summarizes it, and the first NEXT: line of the catalog becomes the
// next round's subtopic. Artifacts accumulate under params.OutputDir and a
// master index is written at the end, cancelled or not.
func (s *Swarm) RunResearch(ctx context.Context, params ResearchParams, cb Callbacks) (*ResearchResult, error) {
	s.cancelled.Store(false)
	start := time.Now()

	if params.Topic == "" {
		return nil, fmt.Errorf("research topic cannot be empty")
	}
	maxRounds := params.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 3
	}
	outputDir := params.OutputDir
	if outputDir == "" {
		outputDir = "research_output"
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	logger := s.logger.With().Str("topic", params.Topic).Logger()
	logger.Info().Int("max_rounds", maxRounds).Str("output_dir", outputDir).
		Msg("Starting research loop")

	sink := newEventSink(cb)
	defer sink.close()

	stopWatch := s.watchRawGrowth(outputDir, sink, logger)
	defer stopWatch()

	var rounds []researchRound
	subtopic := params.Topic

	for round := 1; round <= maxRounds; round++ {
		if s.isCancelled() {
			logger.Info().Int("round", round).Msg("Research cancelled")
			break
		}

		sink.publish(Event{Kind: EventRoundStarted, Round: round, MaxRounds: maxRounds, Subtopic: subtopic})
		logger.Info().Int("round", round).Str("subtopic", subtopic).Msg("Research round started")

		rawPath := filepath.Join(outputDir, fmt.Sprintf("raw_data_round_%02d.txt", round))
		answer := s.collectRound(ctx, round, params.Topic, subtopic, rawPath, sink, logger)

		if s.isCancelled() {
			break
		}

		catalog := s.catalogRound(ctx, round, subtopic, answer, rawPath, sink, logger)
		catalog = stripThinkTags(catalog)

		catalogPath := filepath.Join(outputDir, fmt.Sprintf("round_%02d_%s.md", round, subtopicSlug(subtopic)))
		if err := os.WriteFile(catalogPath, []byte(catalog), 0o644); err != nil {
			logger.Error().Err(err).Str("path", catalogPath).Msg("Failed to write catalog")
			catalogPath = ""
		}

		rec := researchRound{
			index:       round,
			subtopic:    subtopic,
			catalogPath: catalogPath,
			excerpt:     excerpt(catalog, indexExcerptLen),
		}
		if info, err := os.Stat(rawPath); err == nil && info.Size() > 0 {
			rec.rawPath = rawPath
		}
		rounds = append(rounds, rec)

		// The loop never stalls for lack of a follow-up.
		next := extractNextSubtopic(catalog)
		if next == "" {
			next = fmt.Sprintf("%s (deeper dive round %d)", params.Topic, round+1)
		}
		subtopic = next
	}

	elapsed := time.Since(start)
	result := &ResearchResult{
		Rounds:    len(rounds),
		Cancelled: s.isCancelled(),
		Elapsed:   elapsed,
	}
	for _, rec := range rounds {
		if rec.catalogPath != "" {
			result.Files = append(result.Files, rec.catalogPath)
		}
		if rec.rawPath != "" {
			result.Files = append(result.Files, rec.rawPath)
		}
	}

	indexPath := filepath.Join(outputDir, "research_index.md")
	if err := os.WriteFile(indexPath, []byte(renderIndex(params.Topic, rounds, elapsed, result.Cancelled)), 0o644); err != nil {
		logger.Error().Err(err).Msg("Failed to write research index")
	} else {
		result.Files = append(result.Files, indexPath)
	}

	logger.Info().Int("rounds", result.Rounds).Int("files", len(result.Files)).
		Dur("elapsed", elapsed).Msg("Research loop finished")

	if result.Cancelled {
		return result, ErrCancelled
	}
	return result, nil
}

// collectRound runs the single collector agent for one round. Failures come
// back as error placeholder text so the loop keeps going.
func (s *Swarm) collectRound(ctx context.Context, round int, topic, subtopic, rawPath string, sink *eventSink, logger zerolog.Logger) string {
	cred := s.credentials[round%len(s.credentials)]
	client, err := s.factory.New(cred)
	if err != nil {
		logger.Warn().Int("round", round).Err(err).Msg("Collector backend unavailable")
		return fmt.Sprintf("[round %d ERROR] %v", round, err)
	}

	task := fmt.Sprintf(`Research round %d. Overall topic: %s
Current subtopic: %s

Collect raw source material on the current subtopic. Use fetch_url to
retrieve pages and append_file to persist everything you find, verbatim, to
this exact file:

  %s

Prefix each dump with a "=== SOURCE: <url> ===" header line. Do not
summarise into the file; raw text only. When you are done collecting,
reply with a short report of what you gathered and finish with one or more
lines of the form:

NEXT: <a follow-up subtopic worth researching next>`,
		round, topic, subtopic, rawPath)

	sink.status(collectorRole.Name, "collecting")
	answer, _ := runAgent(ctx, agentParams{
		role:        collectorRole,
		task:        task,
		client:      client,
		model:       s.model,
		gateway:     s.gateway,
		roundBudget: collectorRoundBudget,
		onToolStatus: func(status string) {
			sink.status(collectorRole.Name, status)
		},
		cancelled: s.isCancelled,
		logger:    logger,
	})
	sink.publish(Event{Kind: EventAgentDone, Role: collectorRole.Name, Output: answer})
	return answer
}

// catalogRound runs the tool-free streaming catalog call over the
// collector's answer and the observed raw file size. A failure degrades to
// an error placeholder for this round only.
func (s *Swarm) catalogRound(ctx context.Context, round int, subtopic, answer, rawPath string, sink *eventSink, logger zerolog.Logger) string {
	rawSize := int64(0)
	if info, err := os.Stat(rawPath); err == nil {
		rawSize = info.Size()
	}

	messages := []backend.Message{
		{Role: "system", Content: `You catalog research findings. Given a collector agent's report and the
size of its raw data file, write a short markdown catalog: what was
gathered, where it came from, and what is still missing. End with one or
more lines of the form "NEXT: <follow-up subtopic>" when a deeper dive is
warranted.`},
		{Role: "user", Content: fmt.Sprintf(
			"Subtopic: %s\nRaw data file: %s (%d bytes)\n\nCollector report:\n\n%s",
			subtopic, rawPath, rawSize, answer,
		)},
	}

	sink.status("cataloger", "cataloging")
	catalog, err := s.synthesisCall(ctx, messages, sink)
	if err != nil {
		logger.Warn().Int("round", round).Err(err).Msg("Catalog call failed")
		return fmt.Sprintf("[round %d ERROR] catalog failed: %v\n\nCollector report:\n\n%s", round, err, answer)
	}
	return catalog
}

// watchRawGrowth reports raw-artifact growth as advisory collector status
// events while rounds run. Watching is best effort; any error just disables
// the reporting.
func (s *Swarm) watchRawGrowth(outputDir string, sink *eventSink, logger zerolog.Logger) func() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Debug().Err(err).Msg("Raw growth watcher unavailable")
		return func() {}
	}
	if err := watcher.Add(outputDir); err != nil {
		logger.Debug().Err(err).Str("dir", outputDir).Msg("Cannot watch output directory")
		watcher.Close()
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				name := filepath.Base(ev.Name)
				if !strings.HasPrefix(name, "raw_data_round_") {
					continue
				}
				if info, err := os.Stat(ev.Name); err == nil {
					sink.status(collectorRole.Name, fmt.Sprintf("raw data: %s (%s)", name, humanSize(info.Size())))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Debug().Err(err).Msg("Raw growth watcher error")
			}
		}
	}()

	return func() {
		watcher.Close()
		<-done
	}
}

// extractNextSubtopic returns the first NEXT: follow-up in document order,
// or "" when there is none.
func extractNextSubtopic(text string) string {
	m := nextRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// stripThinkTags removes leaked reasoning delimiters from model output.
func stripThinkTags(text string) string {
	text = thinkRe.ReplaceAllString(text, "")
	text = thinkTagRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// subtopicSlug turns a subtopic into a filesystem-safe file name fragment:
// non-word characters stripped, whitespace collapsed to underscores, at
// most 50 characters.
func subtopicSlug(subtopic string) string {
	slug := slugStripRe.ReplaceAllString(subtopic, "")
	slug = slugSpaceRe.ReplaceAllString(strings.TrimSpace(slug), "_")
	if len(slug) > 50 {
		slug = slug[:50]
	}
	if slug == "" {
		slug = "untitled"
	}
	return slug
}

// excerpt bounds text to at most limit bytes without cutting a rune in
// half, so the index stays valid UTF-8 for multibyte catalog content.
func excerpt(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// renderIndex produces the master index written at the end of every loop.
func renderIndex(topic string, rounds []researchRound, elapsed time.Duration, cancelled bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research index: %s\n\n", topic)
	fmt.Fprintf(&b, "Rounds: %d  \nElapsed: %s\n", len(rounds), elapsed.Round(time.Second))
	if cancelled {
		b.WriteString("Run was cancelled before completing all rounds.\n")
	}
	b.WriteString("\n")

	for _, rec := range rounds {
		fmt.Fprintf(&b, "## Round %d: %s\n\n", rec.index, rec.subtopic)
		if rec.catalogPath != "" {
			fmt.Fprintf(&b, "- Catalog: `%s`\n", filepath.Base(rec.catalogPath))
		}
		if rec.rawPath != "" {
			fmt.Fprintf(&b, "- Raw data: `%s`\n", filepath.Base(rec.rawPath))
		}
		if rec.excerpt != "" {
			fmt.Fprintf(&b, "\n%s\n", rec.excerpt)
		}
		b.WriteString("\n")
	}
	return b.String()
}
