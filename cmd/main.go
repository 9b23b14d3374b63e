package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"syllabus-rag/internal/chromemdb"
	"syllabus-rag/internal/config"
	"syllabus-rag/internal/db"
	"syllabus-rag/internal/embedding"
	"syllabus-rag/internal/helper"
	"syllabus-rag/internal/llmservice"
	"syllabus-rag/internal/models"
	"syllabus-rag/internal/parser"
	"syllabus-rag/internal/rag"
	"syllabus-rag/internal/server"
	"syllabus-rag/internal/session"
)

const configFilePath = "./configs/config.yaml"

// backend is an opened vector index plus its lifecycle hooks.
type backend struct {
	index    rag.VectorIndex
	snapshot func() error
	close    func() error
}

func main() {
	configPath := flag.String("config", configFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path to the syllabus to index")
	query := flag.String("query", "", "Question to be answered")
	chat := flag.Bool("chat", false, "Interactive question loop")
	serve := flag.Bool("serve", false, "Run the HTTP API")
	reset := flag.Bool("reset", false, "Drop everything stored in the index")
	dryRun := flag.Bool("dry-run", false, "Dry run, print chunks and do not save to the index")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setupLogger(cfg.Log)
	log.Debug().Interface("rag", cfg.RAG).Str("index", cfg.Index.Name).Str("backend", cfg.Index.Backend).Msg("Loaded config")

	if *filePath != "" && *query != "" {
		log.Fatal().Msg("Please provide either a document file using the -file flag or a query using the -query flag, but not both")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *dryRun {
		if *filePath == "" {
			log.Fatal().Msg("-dry-run needs a document file")
		}
		previewChunks(*filePath, cfg)
		return
	}

	if !*reset && *filePath == "" && *query == "" && !*chat && !*serve {
		flag.Usage()
		os.Exit(2)
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening vector index")
	}
	err = run(ctx, cfg, b, actions{
		reset: *reset,
		file:  *filePath,
		query: *query,
		chat:  *chat,
		serve: *serve,
	})
	if cerr := b.close(); cerr != nil {
		log.Warn().Err(cerr).Msg("Error closing vector index")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

// actions are the command line modes selected for one run.
type actions struct {
	reset bool
	file  string
	query string
	chat  bool
	serve bool
}

func run(ctx context.Context, cfg *config.Config, b *backend, act actions) error {
	embedder := embedding.New(&cfg.EmbedLLM)

	if act.reset {
		if err := b.index.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset index: %w", err)
		}
		saveSnapshot(b)
		log.Info().Str("index", cfg.Index.Name).Msg("Index reset")
	}

	if act.file != "" {
		err := indexFile(ctx, rag.NewRAG(b.index, embedder, nil, cfg), act.file)
		// keep whatever was written before a failing batch
		saveSnapshot(b)
		if err != nil {
			return err
		}
	}

	if act.query == "" && !act.chat && !act.serve {
		return nil
	}

	completer, err := llmservice.NewClient(&cfg.InferenceLLM)
	if err != nil {
		return fmt.Errorf("failed to initialize inference client: %w", err)
	}
	r := rag.NewRAG(b.index, embedder, completer, cfg)

	switch {
	case act.query != "":
		answer(ctx, r, act.query)
	case act.chat:
		return chatLoop(ctx, r)
	case act.serve:
		srv := server.New(r, session.NewStore(), cfg.Server)
		srv.OnIndexed = b.snapshot
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}
	return nil
}

func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()
		return
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.Index.Backend {
	case config.BackendPgvector:
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		store, err := db.Open(ctx, db.NewDB(sqldb, cfg.Database.Debug), cfg.Index.Name, cfg.EmbedLLM.Dimension)
		if err != nil {
			sqldb.Close()
			return nil, err
		}
		return &backend{
			index:    store,
			snapshot: func() error { return nil },
			close:    store.Close,
		}, nil

	default:
		if path := cfg.Index.Chromem.Path; path != "" {
			if err := helper.CreateFolder(path); err != nil {
				return nil, err
			}
		}
		m, err := chromemdb.NewVectorDBManager(cfg.Index.Chromem)
		if err != nil {
			return nil, err
		}
		if _, err := m.GetOrCreateCollection(ctx, cfg.Index.Name, cfg.EmbedLLM.Dimension); err != nil {
			return nil, err
		}
		return &backend{
			index:    m,
			snapshot: m.Export,
			close:    func() error { return nil },
		}, nil
	}
}

func saveSnapshot(b *backend) {
	if err := b.snapshot(); err != nil {
		log.Error().Err(err).Msg("Error exporting index snapshot")
	}
}

func previewChunks(filePath string, cfg *config.Config) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading document")
	}
	text, err := parser.ExtractText(data, filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing document")
	}
	chunks, err := rag.BuildChunks(text, cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		log.Fatal().Err(err).Msg("Error chunking document")
	}
	log.Info().Int("characters", len([]rune(text))).Int("chunks", len(chunks)).Msg("Parsed content")
	helper.PrettyPrint(chunks)
}

func indexFile(ctx context.Context, r *rag.RAG, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	n, err := r.IndexDocument(ctx, data, filePath)
	if err != nil {
		return fmt.Errorf("failed to index %s (%d chunks written): %w", filePath, n, err)
	}
	return nil
}

func answer(ctx context.Context, r *rag.RAG, query string) *models.PromptResponse {
	response, err := r.Query(ctx, query)
	if err != nil {
		log.Error().Err(err).Msg("Error querying")
		return nil
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Source)

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Content)
	return response
}

func chatLoop(ctx context.Context, r *rag.RAG) error {
	conv, err := session.NewConversation()
	if err != nil {
		return fmt.Errorf("failed to start conversation: %w", err)
	}

	fmt.Println("Ask about the syllabus. Commands: /clear, /export <file.html>, /quit")
	for i, q := range models.SuggestedQuestions {
		fmt.Printf("  %d. %s\n", i+1, q)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() || ctx.Err() != nil {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/clear":
			conv.Clear()
			fmt.Println("Conversation cleared.")
			continue
		case strings.HasPrefix(line, "/export"):
			exportTranscript(conv, strings.TrimSpace(strings.TrimPrefix(line, "/export")))
			continue
		}

		conv.Append(session.Turn{Role: session.RoleUser, Content: line})
		if resp := answer(ctx, r, line); resp != nil {
			conv.Append(session.Turn{Role: session.RoleAssistant, Content: resp.Content, Sources: resp.Source})
		}
	}
}

func exportTranscript(conv *session.Conversation, path string) {
	if path == "" {
		path = "transcript.html"
	}
	page, err := conv.ExportHTML()
	if err != nil {
		log.Error().Err(err).Msg("Error rendering transcript")
		return
	}
	if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
		log.Error().Err(err).Msg("Error writing transcript")
		return
	}
	log.Info().Str("file", path).Int("turns", len(conv.Turns())).Msg("Exported transcript")
}
