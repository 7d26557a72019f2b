package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/cartpilot/cartpilot/internal/browser"
	"github.com/cartpilot/cartpilot/internal/gateway"
	"github.com/cartpilot/cartpilot/internal/governance"
	"github.com/cartpilot/cartpilot/internal/llm"
	"github.com/cartpilot/cartpilot/internal/observability"
	"github.com/cartpilot/cartpilot/internal/recipe"
	"github.com/cartpilot/cartpilot/internal/store"
	"github.com/cartpilot/cartpilot/internal/workflow"
	"github.com/cartpilot/cartpilot/pkg/config"
)

// defaultRequest is the preset weekly-plan profile used when the user
// just presses Enter at the prompt.
const defaultRequest = `Help me build a weekly meal plan for dinner and lunch - I need healthy ` +
	`meals on the table in 30 minutes or less, Monday-Friday, with recipe links and a grocery ` +
	`list included. I'm feeding 2 adults. We don't eat pork. Heart healthy, balanced diet with ` +
	`a variety of whole grains, protein and fresh produce at every meal, about 30 grams of ` +
	`protein per meal. We enjoy global flavors like Mexican, Mediterranean and stir fries. We ` +
	`cook 3 nights a week and use leftovers for lunch; one or two lunches can be a quick ` +
	`sandwich, wrap or salad. Preferred cooking styles are sheet pan, one saute pan, slow ` +
	`cooker and grilling; we own an Instant Pot and a rice cooker. 1-2 vegetarian meals per ` +
	`week, red meat 1-2 times a week, otherwise chicken, tilapia, salmon, cod, shrimp and lamb ` +
	`are all fine. Mix premium cuts with budget-friendly staples and limit specialty ` +
	`ingredients. Include breakfast: we typically eat yogurt with whole grain toast or English ` +
	`muffins with peanut butter, jam, avocado and cheese, sometimes eggs. Avoiding sugar ` +
	`crashes is important.`

func main() {
	observability.PrintBanner()
	observability.InitializeTerminal()

	// Route all log output through the terminal mutex so it never
	// interrupts the dashboard's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	configPath := flag.String("config", "config.json", "path to config file (.json or .yaml)")
	resumeRun := flag.String("run", "", "resume a previously suspended run id")
	showHistory := flag.Int("history", 0, "print the N most recent meal plans and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	db, err := store.NewStore(cfg.Memory.Path)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if *showHistory > 0 {
		plans, err := db.RecentPlans(*showHistory)
		if err != nil {
			log.Fatal(err)
		}
		for _, p := range plans {
			fmt.Printf("[%d] %s\n  request: %s\n  items: %s\n", p.ID, p.Date, p.Prompt, strings.Join(p.Items, ", "))
		}
		if len(plans) == 0 {
			fmt.Println("No recorded meal plans yet")
		}
		observability.CleanupTerminal()
		return
	}

	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		log.Fatal("No enabled provider found in config")
	}

	var completer llm.Completer
	switch pName {
	case "openai", "openrouter":
		client, err := llm.NewOpenAIClient(pCfg.APIKey, pCfg.Model, pCfg.BaseURL)
		if err != nil {
			log.Fatal(err)
		}
		completer = client
	default:
		log.Fatalf("Provider %s not yet implemented in main", pName)
	}

	logger := observability.NewLogger()
	session := browser.NewSession(cfg.Browser, cfg.Shopping)

	pol := governance.NewDefaultPolicyEngine()
	// Default safety rules: keep age-restricted goods out of the cart.
	_ = pol.DenyItem(`\b(wine|beer|liquor|vodka|whiskey)\b`)
	_ = pol.DenyItem(`\b(cigarette|tobacco|vape)\b`)

	var notifier workflow.Notifier
	if gName, gCfg, ok := cfg.GetNotifier(); ok {
		var messenger gateway.Messenger
		var gerr error
		switch gName {
		case "telegram":
			messenger, gerr = gateway.NewTelegramGateway(gCfg.Token)
		case "discord":
			messenger, gerr = gateway.NewDiscordGateway(gCfg.Token)
		}
		if gerr != nil {
			log.Printf("Warning: failed to initialize %s gateway: %v", gName, gerr)
		} else if messenger != nil {
			defer messenger.Stop()
			notifier = &gateway.ChannelNotifier{Messenger: messenger, ChatID: gCfg.ChatID}
		}
	}

	orch := &workflow.Orchestrator{
		LLM:         completer,
		Prompts:     llm.NewPromptManager(cfg.App.PromptsDir),
		Cart:        session,
		Checkpoints: db,
		Recipes:     recipe.NewFetcher(),
		Gateway:     notifier,
		Plans:       db,
		Policy:      pol,
		Events:      logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Live dashboard (1-second updates)
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.PrintLiveStatus()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
			}
		}
	}()

	reader := bufio.NewReader(os.Stdin)

	runID := *resumeRun
	request := ""
	if runID == "" {
		runID = uuid.NewString()
		fmt.Println("Enter your meal request, or press [ENTER] to reuse your last one (or the default weekly plan):")
		fmt.Print("> ")
		line, _ := reader.ReadString('\n')
		request = strings.TrimSpace(line)
		if request == "" {
			request = db.GetSetting("last_request", defaultRequest)
			log.Println("Using the saved request profile")
		} else if err := db.SaveSetting("last_request", request); err != nil {
			log.Printf("Warning: failed to remember request: %v", err)
		}
	} else {
		// Fail fast on a mistyped id, before a browser launches.
		if _, ok, err := db.Get(ctx, runID); err != nil {
			log.Fatal(err)
		} else if !ok {
			log.Fatalf("No checkpoint found for run %s", runID)
		}
	}

	session.SetEvents(logger, runID)
	if err := session.Start(ctx); err != nil {
		log.Fatal(err)
	}

	state, err := orch.Run(ctx, runID, request)
	if err != nil {
		session.Close()
		log.Fatal(err)
	}

	if state.Stage == workflow.StageAwaitingApproval {
		printCartSummary(state)

		fmt.Print("\nProceed to checkout? (yes/no): ")
		line, _ := reader.ReadString('\n')
		approved := strings.EqualFold(strings.TrimSpace(line), "yes")

		window := ""
		if approved {
			lastWindow := db.GetSetting("delivery_window", "")
			if lastWindow != "" {
				fmt.Printf("Delivery window [%s]: ", lastWindow)
			} else {
				fmt.Print("Delivery window: ")
			}
			line, _ = reader.ReadString('\n')
			window = strings.TrimSpace(line)
			if window == "" {
				window = lastWindow
			}
			if window != "" {
				if err := db.SaveSetting("delivery_window", window); err != nil {
					log.Printf("Warning: failed to remember delivery window: %v", err)
				}
			}
		}

		state, err = orch.Resume(ctx, runID, approved, window)
		if err != nil {
			session.Close()
			log.Fatal(err)
		}
	}

	session.Close()
	observability.CleanupTerminal()
	if state.Message != "" {
		log.Println(state.Message)
	}
	log.Printf("Run %s finished in stage %s", runID, state.Stage)
}

func printCartSummary(state workflow.State) {
	res := state.CartResult()

	fmt.Println("\n--- HUMAN REVIEW REQUIRED ---")
	fmt.Printf("In cart (%d):\n", len(res.Added))
	for _, it := range res.Added {
		label := it.ResolvedName
		if it.SubstituteOf != "" {
			label = fmt.Sprintf("%s (sub for %s)", it.ResolvedName, it.SubstituteOf)
		}
		if it.Price > 0 {
			fmt.Printf("  - %s ($%.2f)\n", label, it.Price)
		} else {
			fmt.Printf("  - %s\n", label)
		}
	}
	fmt.Printf("Missing (%d):\n", len(res.Missing))
	for _, it := range res.Missing {
		fmt.Printf("  - %s\n", it.RequestedName)
	}
}
