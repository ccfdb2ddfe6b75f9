package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"time"

	"docstore/pkg/database"
	"docstore/pkg/dberror"
	"docstore/pkg/index"
	"docstore/pkg/index/btree"
	"docstore/pkg/index/hash"
	"docstore/pkg/logging"
	"docstore/pkg/migrate"
	"docstore/pkg/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type Configuration struct {
	DatabasePath string
	LogPath      string
	CreateNew    bool
	DemoMode     bool
	ExportFile   string
	Browse       bool
}

func main() {
	config := parseArguments()

	if err := logging.Init(logging.Config{
		Level:      slog.LevelInfo,
		OutputPath: config.LogPath,
	}); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Close()

	if config.Browse {
		showSplashScreen()
	}

	db, err := initializeDatabase(config)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if config.DemoMode {
		if err := runDemoMode(db); err != nil {
			log.Fatalf("Demo mode failed: %v", err)
		}
	}

	if config.ExportFile != "" {
		if err := exportData(db, config.ExportFile); err != nil {
			log.Fatalf("Failed to export data: %v", err)
		}
	}

	if config.Browse {
		if err := startInteractiveMode(db); err != nil {
			log.Fatalf("Failed to start UI: %v", err)
		}
	} else if !config.DemoMode && config.ExportFile == "" {
		printSummary(db)
	}
}

// parseArguments processes command-line flags
func parseArguments() Configuration {
	var config Configuration

	flag.StringVar(&config.DatabasePath, "path", "./data/docstore", "Database directory")
	flag.StringVar(&config.LogPath, "log", "", "Log file path (default stderr)")
	flag.BoolVar(&config.CreateNew, "create", false, "Create the database if it does not exist")
	flag.BoolVar(&config.DemoMode, "demo", false, "Seed the database with sample documents")
	flag.StringVar(&config.ExportFile, "export", "", "Export all documents to a SQLite file")
	flag.BoolVar(&config.Browse, "browse", false, "Browse documents in the terminal UI")

	flag.Parse()

	return config
}

// showSplashScreen displays an attractive welcome screen
func showSplashScreen() {
	splash := `
╔═══════════════════════════════════════════════════════════════════╗
║                                                                   ║
║   ██████╗  ██████╗  ██████╗███████╗████████╗ ██████╗ ██████╗ ███████╗
║   ██╔══██╗██╔═══██╗██╔════╝██╔════╝╚══██╔══╝██╔═══██╗██╔══██╗██╔════╝
║   ██║  ██║██║   ██║██║     ███████╗   ██║   ██║   ██║██████╔╝█████╗
║   ██║  ██║██║   ██║██║     ╚════██║   ██║   ██║   ██║██╔══██╗██╔══╝
║   ██████╔╝╚██████╔╝╚██████╗███████║   ██║   ╚██████╔╝██║  ██║███████╗
║   ╚═════╝  ╚═════╝  ╚═════╝╚══════╝   ╚═╝    ╚═════╝ ╚═╝  ╚═╝╚══════╝
║                                                                   ║
║              An Embedded Document Store Written in Go             ║
╚═══════════════════════════════════════════════════════════════════╝
`

	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7C3AED")).
		Bold(true)

	fmt.Println(style.Render(splash))
	time.Sleep(1 * time.Second)
}

// initializeDatabase opens the database, creating it first when asked.
// The stock indexes cover the demo document shapes and stay cheap when
// unused.
func initializeDatabase(config Configuration) (*database.Database, error) {
	db := database.New(config.DatabasePath)

	stock := []index.Index{
		hash.New(config.DatabasePath, "title", index.FieldDefinition{Field: "title", DocType: "media"}, hash.DefaultOptions()),
		hash.New(config.DatabasePath, "status", index.FieldDefinition{Field: "status"}, hash.DefaultOptions()),
		btree.NewMulti(config.DatabasePath, "label", index.MultiFieldDefinition{Field: "labels"}, btree.DefaultOptions()),
	}
	for _, idx := range stock {
		if err := db.AddIndex(idx); err != nil {
			return nil, err
		}
	}

	if !db.Exists() {
		if !config.CreateNew {
			return nil, fmt.Errorf("database %q does not exist; pass -create to make it", config.DatabasePath)
		}
		fmt.Printf("🔧 Creating database at %s...\n", config.DatabasePath)
		if err := db.Create(); err != nil {
			return nil, err
		}
		fmt.Println("✅ Database created")
		return db, nil
	}

	if err := db.Open(); err != nil {
		if dberror.IsReindexRequired(err) {
			return nil, fmt.Errorf("index layout changed, reindex needed: %w", err)
		}
		return nil, err
	}
	return db, nil
}

// startInteractiveMode launches the Bubble Tea UI
func startInteractiveMode(db *database.Database) error {
	model := ui.NewModel(db)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %v", err)
	}

	return nil
}

// runDemoMode seeds a small media library through the public API.
func runDemoMode(db *database.Database) error {
	fmt.Println("\n🎮 Seeding sample documents...")

	titles := []string{
		"The Long Voyage", "Night Circuit", "Paper Mountains",
		"Second Harvest", "Glass Harbor", "Winter Arcade",
		"The Quiet Engine", "Cobalt Season",
	}
	statuses := []string{"wanted", "snatched", "done"}
	labelPool := [][]any{
		{"favorite"}, {"favorite", "4k"}, {"kids"}, {"4k", "remux"}, nil,
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	seeded := 0
	for i, title := range titles {
		doc := map[string]any{
			"_t":     "media",
			"title":  title,
			"year":   float64(1995 + rng.Intn(30)),
			"status": statuses[i%len(statuses)],
		}
		if labels := labelPool[i%len(labelPool)]; labels != nil {
			doc["labels"] = labels
		}

		if _, err := db.Insert(doc); err != nil {
			return fmt.Errorf("failed to seed %q: %w", title, err)
		}
		seeded++

		progress := float64(i+1) / float64(len(titles)) * 100
		fmt.Printf("\r📊 Progress: %.0f%% ", progress)
		time.Sleep(50 * time.Millisecond)
	}

	profiles := []map[string]any{
		{"_t": "profile", "name": "default", "qualities": []any{"720p", "1080p"}},
		{"_t": "profile", "name": "best", "qualities": []any{"1080p", "2160p"}},
	}
	for _, doc := range profiles {
		if _, err := db.Insert(doc); err != nil {
			return fmt.Errorf("failed to seed profile: %w", err)
		}
		seeded++
	}

	fmt.Printf("\n✅ Seeded %d documents\n", seeded)
	printSummary(db)
	return nil
}

// exportData copies all live documents into a SQLite file.
func exportData(db *database.Database, filename string) error {
	fmt.Printf("📥 Exporting to %s...\n", filename)

	report, err := migrate.ToSQLite(db, filename)
	if err != nil {
		return err
	}

	fmt.Printf("✅ Export completed: %d documents migrated, %d skipped\n",
		report.Migrated, report.Skipped)
	for docType, n := range report.ByType {
		fmt.Printf("   • %s: %d\n", docType, n)
	}
	return nil
}

// printSummary lists the indexes and their live entry counts.
func printSummary(db *database.Database) {
	fmt.Println("\n📝 Indexes:")
	for _, name := range db.IndexesNames() {
		count, err := db.Count(name)
		if err != nil {
			fmt.Printf("  • %-12s (unavailable: %v)\n", name, err)
			continue
		}
		fmt.Printf("  • %-12s %d entries\n", name, count)
	}
	fmt.Println()
}
