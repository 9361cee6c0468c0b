package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rrctrade/RRC-Automation2/internal/config"
	"github.com/rrctrade/RRC-Automation2/internal/order"
	"github.com/rrctrade/RRC-Automation2/internal/strategy"
)

const defaultConfigPath = "internal/config/config.yaml"

var configPath = flag.String("config", defaultConfigPath, "path to the YAML config")

func main() {
	flag.Parse()
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== RRC Trader Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit risk knobs")
		fmt.Println("3) Edit trailing stop")
		fmt.Println("4) Edit session and detector")
		fmt.Println("5) Save config")
		fmt.Println("6) Launch trader")
		fmt.Println("7) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editRisk(reader, cfg)
		case "3":
			editTrail(reader, cfg)
		case "4":
			editSession(reader, cfg)
		case "5":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "6":
			launchTrader(reader)
		case "7":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Mode: %s | feed: %s | journal: %s\n", cfg.App.Mode, cfg.Feed.Provider, cfg.Journal.Driver)
	fmt.Printf("Session: %s %s-%s (%s)\n", cfg.Session.ExchangeMIC, cfg.Session.BiasTime, cfg.Session.StopTime, cfg.Session.Timezone)
	fmt.Printf("Window: %ds | min reference candles: %d | cancel policy: %s\n",
		cfg.Strategy.WindowSeconds, cfg.Strategy.MinReferenceCandles, cfg.Strategy.CancelPolicy)
	fmt.Printf("Per-trade risk: %.2f\n", cfg.Risk.PerTradeRisk)
	fmt.Printf("Per-trade notional cap: %.2f (0 = none)\n", cfg.Risk.MaxNotionalPerTrade)
	fmt.Printf("Trail: %s | rr multiple %.2f | rr profit %.2f | lock profit %.2f\n",
		cfg.Trail.Policy, cfg.Trail.RRMultiple, cfg.Trail.RRProfit, cfg.Trail.LockProfit)
	fmt.Printf("Paper: starting cash %.2f | slippage %.4f\n", cfg.Paper.StartingCash, cfg.Paper.Slippage)
	fmt.Printf("Universe: %d inline symbols, bias file %q\n", len(cfg.Universe.Symbols), cfg.Universe.BiasPath)
}

func editRisk(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Risk ---")
	cfg.Risk.PerTradeRisk = promptFloat(reader, "Per-trade risk", cfg.Risk.PerTradeRisk)
	cfg.Risk.MaxNotionalPerTrade = promptFloat(reader, "Max notional per trade (0 = none)", cfg.Risk.MaxNotionalPerTrade)
	cfg.Paper.StartingCash = promptFloat(reader, "Paper starting cash", cfg.Paper.StartingCash)
	cfg.Paper.Slippage = promptPercent(reader, "Paper slippage (%)", cfg.Paper.Slippage)
}

func editTrail(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Trailing Stop ---")
	if p := promptString(reader, "Policy (risk_multiple|fixed|off)", cfg.Trail.Policy); p != cfg.Trail.Policy {
		if _, err := order.ParseTrailPolicy(p); err != nil {
			fmt.Printf("%v, keeping %s\n", err, cfg.Trail.Policy)
		} else {
			cfg.Trail.Policy = p
		}
	}
	cfg.Trail.RRMultiple = promptFloat(reader, "Risk multiple", cfg.Trail.RRMultiple)
	cfg.Trail.RRProfit = promptFloat(reader, "Fixed profit trigger", cfg.Trail.RRProfit)
	cfg.Trail.LockProfit = promptFloat(reader, "Locked profit", cfg.Trail.LockProfit)
}

func editSession(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Session / Detector ---")
	for _, f := range []struct {
		label string
		dst   *string
	}{
		{"Bias time (HH:MM)", &cfg.Session.BiasTime},
		{"Stop time (HH:MM)", &cfg.Session.StopTime},
	} {
		v := promptString(reader, f.label, *f.dst)
		if _, err := config.ParseClock(v); err != nil {
			fmt.Printf("%v, keeping %s\n", err, *f.dst)
			continue
		}
		*f.dst = v
	}
	cfg.Strategy.MinReferenceCandles = int(promptFloat(reader, "Min reference candles", float64(cfg.Strategy.MinReferenceCandles)))
	if p := promptString(reader, "Cancel policy (wrong_color|opposite_color|never)", cfg.Strategy.CancelPolicy); p != cfg.Strategy.CancelPolicy {
		if _, err := strategy.ParseCancelPolicy(p); err != nil {
			fmt.Printf("%v, keeping %s\n", err, cfg.Strategy.CancelPolicy)
		} else {
			cfg.Strategy.CancelPolicy = p
		}
	}
}

func launchTrader(reader *bufio.Reader) {
	fmt.Println("Launching trader (Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/trader", "-config", locateConfig())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start trader: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the trader and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptString(reader *bufio.Reader, label, current string) string {
	fmt.Printf("%s [%s]: ", label, current)
	line, _ := reader.ReadString('\n')
	if line = strings.TrimSpace(line); line == "" {
		return current
	}
	return line
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.2f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.2f\n", current)
		return current
	}
	return val
}

func promptPercent(reader *bufio.Reader, label string, current float64) float64 {
	pct := promptFloat(reader, label, current*100)
	return pct / 100
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

func saveConfig(cfg *config.Config) error {
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	return filepath.Clean(*configPath)
}
