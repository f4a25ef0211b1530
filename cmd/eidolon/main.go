package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eidolabs/eidolon/internal/bus"
	"github.com/eidolabs/eidolon/internal/checkpoint"
	"github.com/eidolabs/eidolon/internal/config"
	"github.com/eidolabs/eidolon/internal/engine"
	"github.com/eidolabs/eidolon/internal/entity"
	"github.com/eidolabs/eidolon/internal/llm"
)

var rootCmd = &cobra.Command{
	Use:   "eidolon",
	Short: "eidolon - persona companion engine",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine (run loop + heartbeats + nightly ceremony)",
	RunE:  runEngine,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run the engine with an interactive chat on stdin",
	RunE:  runChat,
}

var oneshotCmd = &cobra.Command{
	Use:   "oneshot",
	Short: "Send a single prompt through the queue and print the reply",
	RunE:  runOneshot,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directories",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show eidolon status",
	RunE:  runStatus,
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Manage checkpoints",
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored checkpoints",
	RunE:  runCheckpointList,
}

var checkpointSaveCmd = &cobra.Command{
	Use:   "save <slot> [name]",
	Short: "Save current state into a manual slot",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runCheckpointSave,
}

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore <index>",
	Short: "Restore state from a checkpoint index",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointRestore,
}

var checkpointDeleteCmd = &cobra.Command{
	Use:   "delete <slot>",
	Short: "Delete a manual checkpoint slot",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointDelete,
}

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export full state to a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import full state from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var (
	messageFlag string
	personaFlag string
)

func init() {
	oneshotCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Prompt to send")
	chatCmd.Flags().StringVarP(&personaFlag, "persona", "p", "Ei", "Persona name to chat with")
	checkpointCmd.AddCommand(checkpointListCmd, checkpointSaveCmd, checkpointRestoreCmd, checkpointDeleteCmd)
	rootCmd.AddCommand(runCmd, chatCmd, oneshotCmd, onboardCmd, statusCmd, checkpointCmd, exportCmd, importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStorage picks the checkpoint backend from config.
func openStorage(cfg *config.Config) (checkpoint.Storage, func(), error) {
	switch cfg.Checkpoint.Backend {
	case "sqlite":
		st, err := checkpoint.NewSQLiteStorage(cfg.Checkpoint.DBPath, cfg.Checkpoint.AutoSlots)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return st, func() { _ = st.Close() }, nil
	default:
		st, err := checkpoint.NewFileStorage(cfg.Checkpoint.Dir, cfg.Checkpoint.AutoSlots)
		if err != nil {
			return nil, nil, fmt.Errorf("open file storage: %w", err)
		}
		return st, func() {}, nil
	}
}

// loadStore restores persisted state, bootstrapping a fresh store on
// first run.
func loadStore(mgr *checkpoint.Manager) (*entity.Store, error) {
	snap, err := mgr.LoadState()
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return entity.Bootstrap(time.Now()), nil
	}
	store := &entity.Store{}
	if err := store.Restore(snap); err != nil {
		return nil, fmt.Errorf("restore state: %w", err)
	}
	return store, nil
}

// buildEngine assembles the full stack from config.
func buildEngine(cfg *config.Config) (*engine.Engine, func(), error) {
	if cfg.Provider.APIKey == "" {
		return nil, nil, fmt.Errorf("API key not set. Run 'eidolon onboard' or set EIDOLON_API_KEY / OPENAI_API_KEY")
	}

	client, err := llm.NewOpenAIClient(cfg.Provider)
	if err != nil {
		return nil, nil, fmt.Errorf("create model client: %w", err)
	}

	storage, closeStorage, err := openStorage(cfg)
	if err != nil {
		return nil, nil, err
	}
	mgr := checkpoint.NewManager(storage, cfg.Checkpoint.AutoSlots, cfg.Checkpoint.ManualSlots)

	store, err := loadStore(mgr)
	if err != nil {
		closeStorage()
		return nil, nil, err
	}

	return engine.New(cfg, store, client, mgr, nil), closeStorage, nil
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	eng, cleanup, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return eng.Run(ctx)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	eng, cleanup, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engDone := make(chan error, 1)
	go func() { engDone <- eng.Run(ctx) }()

	persona, err := waitForPersona(eng, personaFlag)
	if err != nil {
		stop()
		<-engDone
		return err
	}

	go printReplies(ctx, eng, persona.ID, os.Stdout)

	fmt.Printf("eidolon chat with %s (type 'exit' to quit)\n", persona.Name)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		if _, err := eng.SendMessage(persona.ID, input); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	stop()
	return <-engDone
}

// waitForPersona resolves a persona by name, retrying briefly while the
// engine loop spins up.
func waitForPersona(eng *engine.Engine, name string) (*entity.Persona, error) {
	var lastErr error
	for i := 0; i < 50; i++ {
		personas, err := eng.Personas()
		if err != nil {
			lastErr = err
			time.Sleep(20 * time.Millisecond)
			continue
		}
		for i := range personas {
			if strings.EqualFold(personas[i].Name, name) {
				return &personas[i], nil
			}
		}
		return nil, fmt.Errorf("persona %q not found", name)
	}
	return nil, fmt.Errorf("engine not ready: %v", lastErr)
}

// printReplies watches the bus and prints persona messages as they land.
func printReplies(ctx context.Context, eng *engine.Engine, personaID string, out io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-eng.Bus().Events():
			if !ok {
				return
			}
			switch evt.Kind {
			case bus.MessageAdded:
				if evt.PersonaID != personaID {
					continue
				}
				msgs, err := eng.Messages(personaID)
				if err != nil || len(msgs) == 0 {
					continue
				}
				last := msgs[len(msgs)-1]
				if last.ID == evt.MessageID && last.Role == entity.RoleSystem {
					fmt.Fprintf(out, "\n%s\n> ", last.Content)
				}
			case bus.ErrorOccurred:
				fmt.Fprintf(out, "\n[%s] %s\n> ", evt.Code, evt.Detail)
			}
		}
	}
}

func runOneshot(cmd *cobra.Command, args []string) error {
	if messageFlag == "" {
		return fmt.Errorf("no prompt: use -m \"...\"")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	eng, cleanup, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engDone := make(chan error, 1)
	go func() { engDone <- eng.Run(ctx) }()

	text, err := eng.OneShot(ctx, messageFlag)
	stop()
	<-engDone
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	if err := os.MkdirAll(config.DataDir(), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	fmt.Printf("Data dir ready: %s\n", config.DataDir())

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key\n", cfgPath)
	fmt.Println("  2. Or set EIDOLON_API_KEY environment variable")
	fmt.Println("  3. Run 'eidolon chat' to talk to Ei")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Model: %s\n", cfg.Provider.Model)
	if cfg.Provider.BaseURL != "" {
		fmt.Printf("Base URL: %s\n", cfg.Provider.BaseURL)
	}
	if cfg.Provider.APIKey != "" && len(cfg.Provider.APIKey) > 8 {
		masked := cfg.Provider.APIKey[:4] + "..." + cfg.Provider.APIKey[len(cfg.Provider.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}
	fmt.Printf("Checkpoints: backend=%s auto=%d manual=%d\n",
		cfg.Checkpoint.Backend, cfg.Checkpoint.AutoSlots, cfg.Checkpoint.ManualSlots)
	fmt.Printf("Ceremony: %s local time\n", cfg.Ceremony.Time)

	storage, closeStorage, err := openStorage(cfg)
	if err != nil {
		fmt.Printf("State: error (%v)\n", err)
		return nil
	}
	defer closeStorage()
	mgr := checkpoint.NewManager(storage, cfg.Checkpoint.AutoSlots, cfg.Checkpoint.ManualSlots)

	snap, err := mgr.LoadState()
	if err != nil {
		fmt.Printf("State: error (%v)\n", err)
		return nil
	}
	if snap == nil {
		fmt.Println("State: not initialized (first run)")
		return nil
	}

	fmt.Printf("State: saved %s\n", snap.SavedAt.Format(time.RFC3339))
	fmt.Printf("Personas: %d\n", len(snap.Personas))
	msgs := 0
	for _, p := range snap.Personas {
		msgs += len(p.Messages)
	}
	fmt.Printf("Messages: %d\n", msgs)
	if snap.Human != nil {
		fmt.Printf("Human data: %d facts, %d traits, %d topics, %d people, %d quotes\n",
			len(snap.Human.Facts), len(snap.Human.Traits), len(snap.Human.Topics),
			len(snap.Human.People), len(snap.Human.Quotes))
	}
	if !snap.LastCeremony.IsZero() {
		fmt.Printf("Last ceremony: %s\n", snap.LastCeremony.Format(time.RFC3339))
	}
	return nil
}

// offlineManager opens the checkpoint backend without an engine, for
// checkpoint and export commands run while the engine is down.
func offlineManager() (*checkpoint.Manager, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	storage, closeStorage, err := openStorage(cfg)
	if err != nil {
		return nil, nil, err
	}
	return checkpoint.NewManager(storage, cfg.Checkpoint.AutoSlots, cfg.Checkpoint.ManualSlots), closeStorage, nil
}

func runCheckpointList(cmd *cobra.Command, args []string) error {
	mgr, cleanup, err := offlineManager()
	if err != nil {
		return err
	}
	defer cleanup()

	infos, err := mgr.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No checkpoints.")
		return nil
	}
	for _, info := range infos {
		name := info.Name
		if name == "" {
			name = "-"
		}
		fmt.Printf("%3d  %-6s  %-20s  %s\n", info.Index, info.Kind, name, info.SavedAt.Format(time.RFC3339))
	}
	return nil
}

func runCheckpointSave(cmd *cobra.Command, args []string) error {
	slot, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid slot %q", args[0])
	}
	name := ""
	if len(args) > 1 {
		name = args[1]
	}

	mgr, cleanup, err := offlineManager()
	if err != nil {
		return err
	}
	defer cleanup()

	store, err := loadStore(mgr)
	if err != nil {
		return err
	}
	if err := mgr.ManualCheckpoint(store, slot, name, time.Now()); err != nil {
		return err
	}
	fmt.Printf("Saved manual checkpoint slot %d\n", slot)
	return nil
}

func runCheckpointRestore(cmd *cobra.Command, args []string) error {
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid index %q", args[0])
	}

	mgr, cleanup, err := offlineManager()
	if err != nil {
		return err
	}
	defer cleanup()

	store := &entity.Store{}
	if err := mgr.Restore(store, index); err != nil {
		return err
	}
	if err := mgr.SaveState(store, time.Now()); err != nil {
		return err
	}
	fmt.Printf("Restored checkpoint %d\n", index)
	return nil
}

func runCheckpointDelete(cmd *cobra.Command, args []string) error {
	slot, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid slot %q", args[0])
	}

	mgr, cleanup, err := offlineManager()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := mgr.DeleteManual(slot); err != nil {
		return err
	}
	fmt.Printf("Deleted manual checkpoint slot %d\n", slot)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	mgr, cleanup, err := offlineManager()
	if err != nil {
		return err
	}
	defer cleanup()

	store, err := loadStore(mgr)
	if err != nil {
		return err
	}
	data, err := store.ExportJSON(time.Now())
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], data, 0644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Printf("Exported state to %s\n", args[0])
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read import: %w", err)
	}

	mgr, cleanup, err := offlineManager()
	if err != nil {
		return err
	}
	defer cleanup()

	store := &entity.Store{}
	if err := store.ImportJSON(data); err != nil {
		return err
	}
	if err := mgr.SaveState(store, time.Now()); err != nil {
		return err
	}
	fmt.Printf("Imported state from %s\n", args[0])
	return nil
}
